// Package tui is the terminal front end. It renders request hook state for
// the selected ticker next to a sidebar built from the configured menu.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"finscope/internal/domain"
	"finscope/internal/hooks"
	"finscope/internal/menu"
	"finscope/internal/prefs"
	"finscope/internal/provider"
	"finscope/internal/request"
	"finscope/internal/util"
)

const (
	priceDays = 30
	newsDays  = 7
	shownBars = 5
	shownNews = 8
)

// Messages.
type stateMsg[T any] struct{ state request.State[T] }
type prefsMsg prefs.Event

// waitState delivers the next snapshot from a hook subscription.
func waitState[T any](ch <-chan request.State[T]) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg[T]{state: s}
	}
}

func waitPrefs(ch <-chan prefs.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return prefsMsg(ev)
	}
}

// Options configures a Model.
type Options struct {
	Menu     []menu.Entry
	Prefs    *prefs.Store
	Ticker   string
	Calendar *util.TradingCalendar
	Logger   *slog.Logger
	HookOpts []request.Option
	Now      func() time.Time
}

// Model is the bubbletea model.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
	now    func() time.Time
	cal    *util.TradingCalendar

	// Hooks and their subscriptions.
	security *hooks.Variant[string, domain.Security]
	prices   *hooks.Variant[hooks.PriceArgs, domain.PriceSeries]
	news     *hooks.Variant[hooks.NewsArgs, []domain.Article]
	secCh    <-chan request.State[domain.Security]
	priceCh  <-chan request.State[domain.PriceSeries]
	newsCh   <-chan request.State[[]domain.Article]

	secState   request.State[domain.Security]
	priceState request.State[domain.PriceSeries]
	newsState  request.State[[]domain.Article]

	// Preferences.
	prefs       *prefs.Store
	prefsID     int
	prefsCh     <-chan prefs.Event
	theme       prefs.Theme
	collapsed   bool
	styles      styles
	lastPrefErr error

	// UI.
	menu          []menu.Entry
	active        int
	input         textinput.Model
	spinner       spinner.Model
	ticker        string
	width, height int
}

// New builds a Model over p. The hooks it creates are closed by Close.
func New(p provider.DataProvider, opts Options) *Model {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	entries := opts.Menu
	if len(entries) == 0 {
		entries, _ = menu.Resolve(nil)
	}
	hookOpts := append([]request.Option{request.WithLogger(log)}, opts.HookOpts...)

	ti := textinput.New()
	ti.Placeholder = "ticker"
	ti.CharLimit = 12
	ti.Prompt = "/ "

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	ctx, cancel := context.WithCancel(context.Background())
	m := &Model{
		ctx:      ctx,
		cancel:   cancel,
		log:      log.With("component", "tui"),
		now:      now,
		cal:      opts.Calendar,
		security: hooks.Security(p, hookOpts...),
		prices:   hooks.PriceData(p, hookOpts...),
		news:     hooks.News(p, hookOpts...),
		prefs:    opts.Prefs,
		theme:    prefs.ResolveSystem(os.Getenv),
		menu:     entries,
		input:    ti,
		spinner:  sp,
	}
	_, m.secCh = m.security.Subscribe(4)
	_, m.priceCh = m.prices.Subscribe(4)
	_, m.newsCh = m.news.Subscribe(4)
	if m.prefs != nil {
		m.prefsID, m.prefsCh = m.prefs.Subscribe(4)
		m.theme = m.prefs.Resolved()
		m.collapsed = m.prefs.Get().SidebarCollapsed
	}
	m.styles = newStyles(m.theme)
	if t := strings.TrimSpace(opts.Ticker); t != "" {
		m.submit(t)
	}
	return m
}

// Close cancels in-flight requests and detaches the hooks.
func (m *Model) Close() {
	m.cancel()
	m.security.Close()
	m.prices.Close()
	m.news.Close()
	if m.prefs != nil {
		m.prefs.Unsubscribe(m.prefsID)
	}
}

// submit starts all hooks for ticker.
func (m *Model) submit(ticker string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return
	}
	m.ticker = ticker
	to := m.now()
	m.security.Go(m.ctx, ticker)
	m.prices.Go(m.ctx, hooks.PriceArgs{Ticker: ticker, Options: domain.PriceOptions{
		From:     to.AddDate(0, 0, -priceDays),
		To:       to,
		Timespan: domain.TimespanDay,
	}})
	m.news.Go(m.ctx, hooks.NewsArgs{Ticker: ticker, Options: domain.NewsOptions{Days: newsDays}})
	m.log.Debug("ticker submitted", "ticker", ticker)
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.spinner.Tick,
		waitState(m.secCh),
		waitState(m.priceCh),
		waitState(m.newsCh),
	}
	if m.prefsCh != nil {
		cmds = append(cmds, waitPrefs(m.prefsCh))
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case stateMsg[domain.Security]:
		m.secState = msg.state
		return m, waitState(m.secCh)

	case stateMsg[domain.PriceSeries]:
		m.priceState = msg.state
		return m, waitState(m.priceCh)

	case stateMsg[[]domain.Article]:
		m.newsState = msg.state
		return m, waitState(m.newsCh)

	case prefsMsg:
		m.applyPrefs(prefs.Event(msg))
		return m, waitPrefs(m.prefsCh)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) applyPrefs(ev prefs.Event) {
	m.theme = ev.Resolved
	m.collapsed = ev.Prefs.SidebarCollapsed
	m.styles = newStyles(m.theme)
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.input.Focused() {
		switch msg.Type {
		case tea.KeyEnter:
			m.submit(m.input.Value())
			m.input.SetValue("")
			m.input.Blur()
			return nil
		case tea.KeyEsc:
			m.input.Blur()
			return nil
		case tea.KeyCtrlC:
			m.Close()
			return tea.Quit
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.Close()
		return tea.Quit
	case "/", "enter":
		return m.input.Focus()
	case "r":
		if m.ticker != "" {
			m.submit(m.ticker)
		}
	case "t":
		m.toggleTheme()
	case "b":
		m.toggleSidebar()
	case "tab", "down", "j":
		m.active = (m.active + 1) % len(m.menu)
	case "shift+tab", "up", "k":
		m.active = (m.active - 1 + len(m.menu)) % len(m.menu)
	}
	return nil
}

// toggleTheme and toggleSidebar update the view immediately; the store
// event that follows carries the same values.
func (m *Model) toggleTheme() {
	if m.prefs == nil {
		if m.theme == prefs.ThemeDark {
			m.theme = prefs.ThemeLight
		} else {
			m.theme = prefs.ThemeDark
		}
		m.styles = newStyles(m.theme)
		return
	}
	theme, err := m.prefs.ToggleTheme()
	m.theme = theme
	m.styles = newStyles(theme)
	m.setPrefErr(err)
}

func (m *Model) toggleSidebar() {
	if m.prefs == nil {
		m.collapsed = !m.collapsed
		return
	}
	collapsed, err := m.prefs.ToggleSidebar()
	m.collapsed = collapsed
	m.setPrefErr(err)
}

func (m *Model) setPrefErr(err error) {
	m.lastPrefErr = err
	if err != nil {
		m.log.Warn("saving preferences", "error", err)
	}
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

func (m *Model) View() string {
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), m.renderPane())
	return lipgloss.JoinVertical(lipgloss.Left, body, "", m.renderStatus())
}

func (m *Model) activeItem() menu.Item {
	if len(m.menu) == 0 {
		return menu.SecurityDetail
	}
	return m.menu[m.active].Item
}

func (m *Model) renderSidebar() string {
	var b strings.Builder
	for i, e := range m.menu {
		line := e.Glyph
		if !m.collapsed {
			line += " " + e.Label
		}
		if i == m.active {
			b.WriteString(m.styles.sidebarActive.Render(line))
		} else {
			b.WriteString(m.styles.sidebar.Render(line))
		}
		b.WriteByte('\n')
	}
	return m.styles.sidebar.Render(strings.TrimRight(b.String(), "\n"))
}

func (m *Model) renderPane() string {
	switch m.activeItem() {
	case menu.News:
		return m.renderNews(shownNews)
	case menu.Settings:
		return m.renderSettings()
	case menu.Dashboard:
		return m.renderDetail() + "\n\n" + m.renderNews(3)
	default:
		return m.renderDetail()
	}
}

func (m *Model) renderDetail() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render(" Security Detail ") + "\n\n")
	if m.ticker == "" {
		b.WriteString(m.styles.dim.Render("press / to enter a ticker"))
		return b.String()
	}

	switch m.secState.Status {
	case request.Pending:
		b.WriteString(m.spinner.View() + " Loading " + m.ticker + "…\n")
	case request.Failed:
		b.WriteString(m.styles.err.Render("Error: "+m.secState.Err.Error()) + "\n")
	case request.Succeeded:
		sec := m.secState.Result
		b.WriteString(m.styles.symbol.Render(sec.Symbol) + "  " + sec.Name)
		if sec.Exchange != "" {
			b.WriteString(m.styles.dim.Render("  " + sec.Exchange))
		}
		b.WriteByte('\n')
	}

	switch m.priceState.Status {
	case request.Pending:
		b.WriteString(m.spinner.View() + " Loading prices…")
	case request.Failed:
		b.WriteString(m.styles.err.Render("Prices unavailable: " + m.priceState.Err.Error()))
	case request.Succeeded:
		b.WriteString(m.renderBars(m.priceState.Result.Bars))
	}
	return b.String()
}

func (m *Model) renderBars(bars []domain.Bar) string {
	if len(bars) == 0 {
		return m.styles.dim.Render("no price data")
	}
	var b strings.Builder
	last := bars[len(bars)-1]
	b.WriteString(m.styles.label.Render("Last ") + m.styles.price.Render(formatPrice(last.Close)))
	if len(bars) > 1 {
		if prev := bars[len(bars)-2].Close; prev != 0 {
			chg := (last.Close - prev) / prev
			b.WriteString("  " + m.styles.changeStyle(chg).Render(formatChange(chg)))
		}
	}
	b.WriteString(m.styles.label.Render("  Vol ") + formatVolume(last.Volume))
	if last.VWAP > 0 {
		b.WriteString(m.styles.label.Render("  Turnover ") + formatTurnover(last.VWAP*float64(last.Volume)))
	}
	b.WriteString("\n\n")

	b.WriteString(m.styles.label.Render(fmt.Sprintf("%-10s %9s %9s %9s %9s %14s", "Date", "Open", "High", "Low", "Close", "Volume")) + "\n")
	start := len(bars) - shownBars
	if start < 0 {
		start = 0
	}
	for i := len(bars) - 1; i >= start; i-- {
		bar := bars[i]
		b.WriteString(fmt.Sprintf("%-10s %9s %9s %9s %9s %14s\n",
			bar.Timestamp.Format("2006-01-02"),
			formatPrice(bar.Open), formatPrice(bar.High), formatPrice(bar.Low), formatPrice(bar.Close),
			formatVolume(bar.Volume)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderNews(limit int) string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render(" News ") + "\n\n")
	if m.ticker == "" {
		return b.String() + m.styles.dim.Render("no ticker selected")
	}
	switch m.newsState.Status {
	case request.Pending:
		b.WriteString(m.spinner.View() + " Loading news…")
	case request.Failed:
		b.WriteString(m.styles.err.Render("News unavailable: " + m.newsState.Err.Error()))
	case request.Succeeded:
		arts := m.newsState.Result
		if len(arts) == 0 {
			b.WriteString(m.styles.dim.Render("no recent articles"))
			break
		}
		width := m.width - 30
		if width < 40 {
			width = 80
		}
		now := m.now()
		for i, a := range arts {
			if i == limit {
				b.WriteString(m.styles.dim.Render(fmt.Sprintf("… %d more", len(arts)-limit)))
				break
			}
			b.WriteString(truncate(a.Headline, width) + "\n")
			b.WriteString(m.styles.dim.Render("  "+a.Source+" · "+formatAge(a.Time, now)) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderSettings() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render(" Settings ") + "\n\n")
	configured := m.theme
	if m.prefs != nil {
		configured = m.prefs.Get().Theme
	}
	b.WriteString(m.styles.label.Render("Theme    ") + string(configured))
	if configured != m.theme {
		b.WriteString(m.styles.dim.Render(" (" + string(m.theme) + ")"))
	}
	b.WriteString("\n" + m.styles.label.Render("Sidebar  "))
	if m.collapsed {
		b.WriteString("collapsed")
	} else {
		b.WriteString("expanded")
	}
	if m.lastPrefErr != nil {
		b.WriteString("\n\n" + m.styles.err.Render("not saved: "+m.lastPrefErr.Error()))
	}
	return b.String()
}

func (m *Model) renderStatus() string {
	var parts []string
	if m.input.Focused() {
		parts = append(parts, m.input.View())
	} else {
		parts = append(parts, "/ ticker", "r refresh", "t theme", "b sidebar", "tab menu", "q quit")
	}
	if m.cal != nil {
		parts = append(parts, m.marketStatus())
	}
	return m.styles.status.Render(" " + strings.Join(parts, "  ") + " ")
}

// marketStatus describes the current session, e.g. "market open until 16:00 ET".
func (m *Model) marketStatus() string {
	now := m.now()
	if m.cal.IsMarketOpen(now) {
		return "market open until " + m.cal.NextClose(now).Format("15:04") + " ET"
	}
	next := m.cal.NextOpen(now)
	if next.IsZero() {
		return "market closed"
	}
	return "market closed, opens " + next.Format("Mon Jan 2 15:04") + " ET"
}
