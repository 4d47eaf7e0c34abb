package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/MeKo-Tech/homest/internal/correspondence"
	"github.com/MeKo-Tech/homest/internal/homography"
	"github.com/MeKo-Tech/homest/internal/server"
	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"
)

// defaultServerConfig mirrors the serve command defaults.
func defaultServerConfig() server.Config {
	return server.Config{
		Host:       "localhost",
		CORSOrigin: "*",
		MaxBodyKB:  1024,
		MaxPoints:  10000,
		TimeoutSec: 30,
		Estimation: homography.DefaultConfig(),
	}
}

// startServer runs the real handlers behind an httptest server.
func (testCtx *TestContext) startServer(config server.Config) error {
	testCtx.StopServer()

	srv, err := server.NewServer(config)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	testCtx.Server = srv
	testCtx.HTTPServer = httptest.NewServer(mux)
	return nil
}

// StopServer shuts down the test server if one is running.
func (testCtx *TestContext) StopServer() {
	if testCtx.HTTPServer != nil {
		testCtx.HTTPServer.Close()
		testCtx.HTTPServer = nil
	}
	if testCtx.Server != nil {
		_ = testCtx.Server.Close()
		testCtx.Server = nil
	}
}

func (testCtx *TestContext) theServerIsRunning() error {
	return testCtx.startServer(defaultServerConfig())
}

func (testCtx *TestContext) theServerIsRunningWithRateLimit(rps float64, burst int) error {
	config := defaultServerConfig()
	config.RateLimit = server.RateLimitConfig{Enabled: true, RequestsPerSecond: rps, Burst: burst}
	return testCtx.startServer(config)
}

func (testCtx *TestContext) theServerIsRunningWithMaxPoints(maxPoints int) error {
	config := defaultServerConfig()
	config.MaxPoints = maxPoints
	return testCtx.startServer(config)
}

// makeHTTPRequest sends a request to the running test server and records the response.
func (testCtx *TestContext) makeHTTPRequest(method, endpoint string, body []byte) error {
	if testCtx.HTTPServer == nil {
		return fmt.Errorf("server is not running")
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, testCtx.HTTPServer.URL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(respBody)
	testCtx.LastHTTPHeaders = make(map[string]string, len(resp.Header))
	for name := range resp.Header {
		testCtx.LastHTTPHeaders[name] = resp.Header.Get(name)
	}
	return nil
}

func sampleRequest() server.EstimateRequest {
	ds := correspondence.Sample()
	req := server.EstimateRequest{Name: ds.Name, Train: ds.Train}
	for i := range ds.Source {
		req.Source = append(req.Source, []float64{ds.Source[i].X, ds.Source[i].Y})
		req.Destination = append(req.Destination, []float64{ds.Destination[i].X, ds.Destination[i].Y})
	}
	return req
}

func (testCtx *TestContext) iGET(endpoint string) error {
	return testCtx.makeHTTPRequest(http.MethodGet, endpoint, nil)
}

func (testCtx *TestContext) iPOSTTheSampleCorrespondencesTo(endpoint string) error {
	body, err := json.Marshal(sampleRequest())
	if err != nil {
		return err
	}
	return testCtx.makeHTTPRequest(http.MethodPost, endpoint, body)
}

func (testCtx *TestContext) iPOSTTo(endpoint string, body *godog.DocString) error {
	return testCtx.makeHTTPRequest(http.MethodPost, endpoint, []byte(body.Content))
}

func (testCtx *TestContext) iMakeAnOPTIONSRequestTo(endpoint string) error {
	return testCtx.makeHTTPRequest(http.MethodOptions, endpoint, nil)
}

func (testCtx *TestContext) iPOSTTheSampleCorrespondencesTimes(times int, endpoint string) error {
	for range times {
		if err := testCtx.iPOSTTheSampleCorrespondencesTo(endpoint); err != nil {
			return err
		}
	}
	return nil
}

func (testCtx *TestContext) theResponseStatusShouldBe(expected int) error {
	if testCtx.LastHTTPStatusCode != expected {
		return fmt.Errorf("expected status %d, got %d\nBody: %s", expected, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain '%s'\nBody: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) responseJSON() (interface{}, error) {
	var data interface{}
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &data); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w\nBody: %s", err, testCtx.LastHTTPResponse)
	}
	return data, nil
}

func (testCtx *TestContext) theResponseJSONFieldShouldBe(field, expected string) error {
	data, err := testCtx.responseJSON()
	if err != nil {
		return err
	}
	val, err := lookupField(data, field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(val); got != expected {
		return fmt.Errorf("field '%s' is %q, want %q", field, got, expected)
	}
	return nil
}

func (testCtx *TestContext) theResponseJSONFieldShouldBeApproximately(field, expected string) error {
	data, err := testCtx.responseJSON()
	if err != nil {
		return err
	}
	return checkApproximately(data, field, expected)
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, expected string) error {
	if got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; got != expected {
		return fmt.Errorf("header %s is %q, want %q", name, got, expected)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBeSet(name string) error {
	if testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)] == "" {
		return fmt.Errorf("header %s is not set", name)
	}
	return nil
}

// iSendTheSampleOverTheWebSocket sends one estimate message and reads until a
// final status arrives.
func (testCtx *TestContext) iSendTheSampleOverTheWebSocket(requestID string) error {
	if testCtx.HTTPServer == nil {
		return fmt.Errorf("server is not running")
	}
	url := "ws" + strings.TrimPrefix(testCtx.HTTPServer.URL, "http") + "/ws/estimate"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial websocket: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	msg := map[string]interface{}{"request_id": requestID}
	req := sampleRequest()
	msg["name"] = req.Name
	msg["source"] = req.Source
	msg["destination"] = req.Destination
	msg["train"] = req.Train
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send websocket message: %w", err)
	}

	testCtx.LastWSMessages = nil
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var reply map[string]interface{}
		if err := conn.ReadJSON(&reply); err != nil {
			return fmt.Errorf("failed to read websocket message: %w", err)
		}
		testCtx.LastWSMessages = append(testCtx.LastWSMessages, reply)
		if status := fmt.Sprint(reply["status"]); status == "completed" || status == "error" {
			return nil
		}
	}
}

func (testCtx *TestContext) theWebSocketShouldReportStatuses(statuses string) error {
	var got []string
	for _, msg := range testCtx.LastWSMessages {
		got = append(got, fmt.Sprint(msg["status"]))
	}
	if strings.Join(got, ",") != statuses {
		return fmt.Errorf("websocket statuses %v, want %s", got, statuses)
	}
	return nil
}

func (testCtx *TestContext) theWebSocketResultFieldShouldBeApproximately(field, expected string) error {
	if len(testCtx.LastWSMessages) == 0 {
		return fmt.Errorf("no websocket messages received")
	}
	last := testCtx.LastWSMessages[len(testCtx.LastWSMessages)-1]
	return checkApproximately(map[string]interface{}(last), field, expected)
}

// RegisterServerSteps registers server step definitions.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the server is running$`, testCtx.theServerIsRunning)
	sc.Step(`^the server is running with a rate limit of ([0-9.]+) requests per second and burst (\d+)$`,
		testCtx.theServerIsRunningWithRateLimit)
	sc.Step(`^the server is running with at most (\d+) points per request$`, testCtx.theServerIsRunningWithMaxPoints)

	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I POST the sample correspondences to "([^"]*)"$`, testCtx.iPOSTTheSampleCorrespondencesTo)
	sc.Step(`^I POST the sample correspondences (\d+) times to "([^"]*)"$`, testCtx.iPOSTTheSampleCorrespondencesTimes)
	sc.Step(`^I POST to "([^"]*)":$`, testCtx.iPOSTTo)
	sc.Step(`^I make an OPTIONS request to "([^"]*)"$`, testCtx.iMakeAnOPTIONSRequestTo)

	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseJSONFieldShouldBe)
	sc.Step(`^the response field "([^"]*)" should be approximately ([-+0-9.eE]+)$`,
		testCtx.theResponseJSONFieldShouldBeApproximately)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^the response header "([^"]*)" should be set$`, testCtx.theResponseHeaderShouldBeSet)

	sc.Step(`^I send the sample over the websocket with request id "([^"]*)"$`, testCtx.iSendTheSampleOverTheWebSocket)
	sc.Step(`^the websocket should report "([^"]*)"$`, testCtx.theWebSocketShouldReportStatuses)
	sc.Step(`^the websocket result field "([^"]*)" should be approximately ([-+0-9.eE]+)$`,
		testCtx.theWebSocketResultFieldShouldBeApproximately)
}
