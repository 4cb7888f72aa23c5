package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Styling
var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#C2813B")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#0a84ff")).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#30d158")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#ff453a")).
			Padding(0, 1)
)

const refreshEvery = 2 * time.Second

// Model defines the application state
type Model struct {
	mainMenu      list.Model
	stockView     table.Model
	counterView   table.Model
	robotView     table.Model
	productList   list.Model
	productDetail Product
	report        *Report
	textInput     textinput.Model
	spinner       spinner.Model
	client        *ApiClient
	loading       bool
	currentView   string
	status        string
	error         string
}

// item represents a list item
type item struct {
	title, desc string
}

// FilterValue implements list.Item interface
func (i item) FilterValue() string { return i.title }

// Title implements list.Item interface
func (i item) Title() string { return i.title }

// Description implements list.Item interface
func (i item) Description() string { return i.desc }

// Initialize the model
func initialModel() Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	items := []list.Item{
		item{title: "Stock", desc: "Ingredients in storage and products at the counter"},
		item{title: "Robots", desc: "What every robot did last"},
		item{title: "Products", desc: "Doughs and products and who worked on them"},
		item{title: "Shift Report", desc: "Summary of the shift so far"},
		item{title: "Deliver", desc: "Deliver ingredients or flour packs"},
		item{title: "Exit", desc: "Exit the application"},
	}
	mainMenu := list.New(items, list.NewDefaultDelegate(), 0, 0)
	mainMenu.Title = "Robot Bakery"

	stockTable := table.New(
		table.WithColumns([]table.Column{{Title: "Ingredient", Width: 20}, {Title: "Amount", Width: 10}}),
		table.WithHeight(7),
	)
	counterTable := table.New(
		table.WithColumns([]table.Column{{Title: "Product", Width: 20}, {Title: "At counter", Width: 10}}),
		table.WithHeight(7),
	)
	robotTable := table.New(
		table.WithColumns([]table.Column{
			{Title: "Robot", Width: 18},
			{Title: "State", Width: 10},
			{Title: "Last action", Width: 12},
			{Title: "Committed", Width: 10},
			{Title: "Failed", Width: 8},
			{Title: "Reason", Width: 40},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	productList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	productList.Title = "Products"

	ti := textinput.New()
	ti.Placeholder = "EGGS 10 or packs 2"
	ti.CharLimit = 64
	ti.Width = 30

	return Model{
		mainMenu:    mainMenu,
		stockView:   stockTable,
		counterView: counterTable,
		robotView:   robotTable,
		productList: productList,
		spinner:     s,
		textInput:   ti,
		client:      NewApiClient(),
		currentView: "main",
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tea.EnterAltScreen, checkHealth(m.client))
}

// Update handles UI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.mainMenu.SetSize(msg.Width-h, msg.Height-v)
		m.productList.SetSize(msg.Width-h, msg.Height-v-2)
	case tea.KeyMsg:
		if m.currentView == "deliver" {
			switch msg.String() {
			case "enter":
				return m, deliver(m.client, m.textInput.Value())
			case "esc":
				m.currentView = "main"
				m.textInput.Blur()
				return m, nil
			case "ctrl+c":
				return m, tea.Quit
			}
			break
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter":
			switch m.currentView {
			case "main":
				if selected, ok := m.mainMenu.SelectedItem().(item); ok {
					return m.open(selected.title)
				}
			case "products":
				if selected, ok := m.productList.SelectedItem().(productItem); ok {
					m.currentView = "product_detail"
					return m, fetchProduct(m.client, selected.id)
				}
			case "product_detail":
				m.currentView = "products"
				return m, fetchProducts(m.client)
			}
		case "esc":
			if m.currentView == "product_detail" {
				m.currentView = "products"
				return m, fetchProducts(m.client)
			} else if m.currentView != "main" {
				m.currentView = "main"
				m.error = ""
			}
		case "r":
			return m, m.refresh()
		case "n":
			if m.currentView == "report" {
				m.loading = true
				return m, fetchReport(m.client, true)
			}
		}
	case stockMsg:
		m.stockView.SetRows(countRows(msg.ingredients))
		m.counterView.SetRows(countRows(msg.counter))
		return m, nil
	case robotsMsg:
		m.robotView.SetRows(robotRows(msg.robots))
		return m, nil
	case productsMsg:
		m.productList.SetItems(convertProductsToItems(msg.products))
		return m, nil
	case productDetailMsg:
		m.productDetail = msg.product
		return m, nil
	case reportMsg:
		m.loading = false
		m.report = msg.report
		return m, nil
	case tickMsg:
		if m.currentView == "stock" || m.currentView == "robots" {
			return m, tea.Batch(m.refresh(), tick())
		}
		return m, nil
	case errorMsg:
		m.loading = false
		m.error = msg.err
		return m, nil
	case confirmMsg:
		m.error = ""
		m.status = msg.message
		m.textInput.SetValue("")
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	switch m.currentView {
	case "main":
		m.mainMenu, cmd = m.mainMenu.Update(msg)
	case "robots":
		m.robotView, cmd = m.robotView.Update(msg)
	case "products":
		m.productList, cmd = m.productList.Update(msg)
	case "deliver":
		m.textInput, cmd = m.textInput.Update(msg)
	}

	return m, cmd
}

func (m Model) open(title string) (tea.Model, tea.Cmd) {
	m.error = ""
	m.status = ""
	switch title {
	case "Exit":
		return m, tea.Quit
	case "Stock":
		m.currentView = "stock"
		return m, tea.Batch(m.refresh(), tick())
	case "Robots":
		m.currentView = "robots"
		return m, tea.Batch(m.refresh(), tick())
	case "Products":
		m.currentView = "products"
	case "Shift Report":
		m.currentView = "report"
		m.loading = true
	case "Deliver":
		m.currentView = "deliver"
		m.textInput.Focus()
		return m, textinput.Blink
	}
	return m, m.refresh()
}

// refresh reloads the current view
func (m Model) refresh() tea.Cmd {
	switch m.currentView {
	case "stock":
		return fetchStock(m.client)
	case "robots":
		return fetchRobots(m.client)
	case "products":
		return fetchProducts(m.client)
	case "report":
		return fetchReport(m.client, false)
	}
	return nil
}

// View renders the UI
func (m Model) View() string {
	footer := ""
	if m.error != "" {
		footer += "\n" + errorStyle.Render(m.error)
	}
	if m.status != "" {
		footer += "\n" + successStyle.Render(m.status)
	}

	switch m.currentView {
	case "main":
		return docStyle.Render(m.mainMenu.View() + footer)
	case "stock":
		view := titleStyle.Render("Storage") + "\n\n" + m.stockView.View() + "\n\n"
		view += titleStyle.Render("Counter") + "\n\n" + m.counterView.View()
		return docStyle.Render(view + "\n\nPress 'r' to refresh, 'esc' to go back" + footer)
	case "robots":
		view := titleStyle.Render("Robots") + "\n\n" + m.robotView.View()
		return docStyle.Render(view + "\n\nPress 'r' to refresh, 'esc' to go back" + footer)
	case "products":
		help := "\nPress 'enter' to view history, 'r' to refresh, 'esc' to go back"
		return docStyle.Render(m.productList.View() + help + footer)
	case "product_detail":
		return docStyle.Render(productDetailView(m.productDetail) + footer)
	case "report":
		if m.loading {
			return docStyle.Render(m.spinner.View() + " Building report..." + footer)
		}
		return docStyle.Render(reportView(m.report) + "\n\nPress 'n' for a written summary, 'r' to refresh, 'esc' to go back" + footer)
	case "deliver":
		view := titleStyle.Render("Deliver") + "\n\n"
		view += "Enter <kind> <count> for single units or 'packs <count>' for flour.\n"
		view += infoStyle.Render("EGGS  BAKING_MIX_SWEET  BAKING_MIX_SPICY") + "\n\n"
		view += m.textInput.View()
		return docStyle.Render(view + "\n\nPress 'enter' to deliver, 'esc' to go back" + footer)
	default:
		return "Loading..."
	}
}

// Custom message types for the tea.Model
type stockMsg struct {
	ingredients map[string]int
	counter     map[string]int
}

type robotsMsg struct {
	robots []Robot
}

type productsMsg struct {
	products []Product
}

type productDetailMsg struct {
	product Product
}

type reportMsg struct {
	report *Report
}

type tickMsg time.Time

type errorMsg struct {
	err string
}

type confirmMsg struct {
	message string
}

// productItem represents a product in the list
type productItem struct {
	id    string
	title string
	desc  string
}

func (i productItem) Title() string       { return i.title }
func (i productItem) Description() string { return i.desc }
func (i productItem) FilterValue() string { return i.title }

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func checkHealth(client *ApiClient) tea.Cmd {
	return func() tea.Msg {
		if _, err := client.CheckHealth(); err != nil {
			return errorMsg{err: fmt.Sprintf("API at %s is not available: %v", client.BaseURL, err)}
		}
		return confirmMsg{message: "Connected to " + client.BaseURL}
	}
}

func fetchStock(client *ApiClient) tea.Cmd {
	return func() tea.Msg {
		ingredients, err := client.GetIngredientStock()
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching stock: %v", err)}
		}
		counter, err := client.GetCounterStock()
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching counter: %v", err)}
		}
		return stockMsg{ingredients: ingredients, counter: counter}
	}
}

func fetchRobots(client *ApiClient) tea.Cmd {
	return func() tea.Msg {
		robots, err := client.GetRobots()
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching robots: %v", err)}
		}
		return robotsMsg{robots: robots}
	}
}

func fetchProducts(client *ApiClient) tea.Cmd {
	return func() tea.Msg {
		products, err := client.GetProducts("")
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching products: %v", err)}
		}
		return productsMsg{products: products}
	}
}

func fetchProduct(client *ApiClient, id string) tea.Cmd {
	return func() tea.Msg {
		product, err := client.GetProduct(id)
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching product: %v", err)}
		}
		return productDetailMsg{product: *product}
	}
}

func fetchReport(client *ApiClient, narrative bool) tea.Cmd {
	return func() tea.Msg {
		report, err := client.GetReport(narrative)
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching report: %v", err)}
		}
		return reportMsg{report: report}
	}
}

// deliver parses "<kind> <count>" and sends the delivery
func deliver(client *ApiClient, input string) tea.Cmd {
	return func() tea.Msg {
		fields := strings.Fields(input)
		if len(fields) != 2 {
			return errorMsg{err: "Please enter <kind> <count>"}
		}
		count, err := strconv.Atoi(fields[1])
		if err != nil || count <= 0 {
			return errorMsg{err: "Count must be a positive number"}
		}

		kind := strings.ToUpper(fields[0])
		if kind == "PACKS" || kind == "FLOUR" {
			err = client.DeliverPacks(count)
		} else {
			err = client.DeliverIngredients(kind, count)
		}
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Delivery failed: %v", err)}
		}
		return confirmMsg{message: fmt.Sprintf("Delivered %d %s", count, strings.ToLower(kind))}
	}
}

func countRows(counts map[string]int) []table.Row {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		rows = append(rows, table.Row{name, strconv.Itoa(counts[name])})
	}
	return rows
}

func robotRows(robots []Robot) []table.Row {
	rows := make([]table.Row, 0, len(robots))
	for _, r := range robots {
		reason := r.LastReason
		if r.Error != "" {
			reason = r.Error
		}
		rows = append(rows, table.Row{
			r.ID, r.State, r.LastAction,
			strconv.Itoa(r.Committed), strconv.Itoa(r.Failed), reason,
		})
	}
	return rows
}

// convertProductsToItems converts API products to list items
func convertProductsToItems(products []Product) []list.Item {
	items := make([]list.Item, len(products))
	for i, p := range products {
		items[i] = productItem{
			id:    p.ID,
			title: fmt.Sprintf("%s %s", p.ProductName, shortID(p.ID)),
			desc:  fmt.Sprintf("%s - %d steps", p.State, len(p.Contributions)),
		}
	}
	return items
}

// productDetailView shows a product and its contribution history
func productDetailView(p Product) string {
	view := titleStyle.Render(fmt.Sprintf("%s %s", p.ProductName, shortID(p.ID))) + "\n\n"
	view += fmt.Sprintf("State: %s\n", p.State)
	if !p.Timestamp.IsZero() {
		view += fmt.Sprintf("Last change: %s\n", p.Timestamp.Format(time.RFC1123))
	}

	view += "\nHistory:\n"
	if len(p.Contributions) == 0 {
		view += "Nothing yet\n"
	}
	for i, c := range p.Contributions {
		view += fmt.Sprintf("%d. %-12s by %s (%s) at %s\n", i+1, c.Kind, c.RobotID, c.RobotType, c.Timestamp.Format("15:04:05"))
	}

	view += "\nPress 'enter' or 'esc' to go back to the list"
	return view
}

func reportView(r *Report) string {
	view := titleStyle.Render("Shift Report") + "\n\n"
	if r == nil {
		return view + "No report yet"
	}
	if r.Scenario != "" {
		view += fmt.Sprintf("Scenario: %s\n", r.Scenario)
	}
	view += fmt.Sprintf("Generated: %s\n", r.GeneratedAt.Format(time.RFC1123))
	view += fmt.Sprintf("Flour packs: %d\n", r.FlourPacks)
	view += fmt.Sprintf("Products: %d total, %d in progress, %d sold\n\n",
		r.Production.Total, r.Production.InProgress, r.Production.Sold)

	view += "Sold:\n"
	for _, row := range countRows(r.Production.SoldByProduct) {
		view += fmt.Sprintf("  %-14s %s\n", row[0], row[1])
	}
	view += "By state:\n"
	for _, row := range countRows(r.ProductsByState) {
		if row[1] != "0" {
			view += fmt.Sprintf("  %-20s %s\n", row[0], row[1])
		}
	}
	if r.Narrative != "" {
		view += "\n" + infoStyle.Render("Summary") + "\n" + r.Narrative + "\n"
	}
	return view
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func main() {
	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running program: %v", err)
		os.Exit(1)
	}
}
