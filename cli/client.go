package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

// ApiClient handles requests to the bakery dashboard API
type ApiClient struct {
	httpClient *http.Client
	BaseURL    string
	Token      string
}

// NewApiClient creates a client from BAKERY_API_URL and BAKERY_TOKEN
func NewApiClient() *ApiClient {
	baseURL := os.Getenv("BAKERY_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	return &ApiClient{
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
		BaseURL: baseURL,
		Token:   os.Getenv("BAKERY_TOKEN"),
	}
}

// CheckHealth checks if the API is up and running
func (c *ApiClient) CheckHealth() (bool, error) {
	resp, err := c.httpClient.Get(c.BaseURL + "/health")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("API health check failed with status code: %d", resp.StatusCode)
	}

	return true, nil
}

// Contribution is one step in a product's history
type Contribution struct {
	RobotID   string    `json:"robot_id"`
	Kind      string    `json:"kind"`
	RobotType string    `json:"robot_type"`
	Timestamp time.Time `json:"timestamp"`
}

// Product is a dough or product moving through the bakery
type Product struct {
	ID            string         `json:"id"`
	ProductName   string         `json:"product_name"`
	State         string         `json:"state"`
	Timestamp     time.Time      `json:"timestamp"`
	Contributions []Contribution `json:"contributions"`
}

// Robot is the last known status of a robot
type Robot struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	State      string `json:"state"`
	LastAction string `json:"last_action"`
	LastReason string `json:"last_reason"`
	Iterations int    `json:"iterations"`
	Committed  int    `json:"committed"`
	Failed     int    `json:"failed"`
	Error      string `json:"error"`
}

// Report is the shift report returned by the API
type Report struct {
	GeneratedAt     time.Time      `json:"generated_at"`
	Scenario        string         `json:"scenario"`
	Ingredients     map[string]int `json:"ingredients"`
	FlourPacks      int            `json:"flour_packs"`
	Counter         map[string]int `json:"counter"`
	ProductsByState map[string]int `json:"products_by_state"`
	Production      struct {
		Total         int            `json:"total"`
		InProgress    int            `json:"in_progress"`
		Sold          int            `json:"sold"`
		SoldByProduct map[string]int `json:"sold_by_product"`
	} `json:"production"`
	Narrative string `json:"narrative"`
}

// GetIngredientStock fetches the storage stock
func (c *ApiClient) GetIngredientStock() (map[string]int, error) {
	var stock map[string]int
	err := c.get("/api/v1/stock/ingredients", nil, &stock)
	return stock, err
}

// GetCounterStock fetches the products at the counter
func (c *ApiClient) GetCounterStock() (map[string]int, error) {
	var stock map[string]int
	err := c.get("/api/v1/stock/counter", nil, &stock)
	return stock, err
}

// GetRobots fetches every robot status
func (c *ApiClient) GetRobots() ([]Robot, error) {
	var robots []Robot
	err := c.get("/api/v1/robots", nil, &robots)
	return robots, err
}

// GetProducts fetches products, optionally filtered by state
func (c *ApiClient) GetProducts(state string) ([]Product, error) {
	query := url.Values{}
	if state != "" {
		query.Set("state", state)
	}
	var products []Product
	err := c.get("/api/v1/products", query, &products)
	return products, err
}

// GetProduct fetches one product with its history
func (c *ApiClient) GetProduct(id string) (*Product, error) {
	var product Product
	if err := c.get("/api/v1/products/"+url.PathEscape(id), nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// GetReport fetches the shift report
func (c *ApiClient) GetReport(narrative bool) (*Report, error) {
	query := url.Values{}
	if narrative {
		query.Set("narrative", "true")
	}
	var report Report
	if err := c.get("/api/v1/report", query, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// DeliverIngredients adds count units of kind to storage
func (c *ApiClient) DeliverIngredients(kind string, count int) error {
	body := map[string]interface{}{"kind": kind, "count": count}
	return c.post("/api/v1/storage/ingredients", body)
}

// DeliverPacks adds count full flour packs to storage
func (c *ApiClient) DeliverPacks(count int) error {
	return c.post("/api/v1/storage/packs", map[string]int{"count": count})
}

func (c *ApiClient) get(path string, query url.Values, out interface{}) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	resp, err := c.httpClient.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *ApiClient) post(path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	var apiErr struct {
		Error string `json:"error"`
	}
	body, _ := io.ReadAll(resp.Body)
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
	}
	return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
}
