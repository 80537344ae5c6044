package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"order-tracker/internal/core/httpclient"
	"order-tracker/internal/core/logger"
	"order-tracker/internal/core/proxy"
	tracking "order-tracker/internal/features/tracking/domain"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"go.uber.org/zap"
)

const carrierInterrapidisimo = "interrapidisimo"

// InterrapidisimoAdapter fetches shipment history from Interrapidisimo. It
// first tries the carrier's JSON API directly; when that is blocked it
// falls back to driving the public tracking page in a headless browser and
// intercepting the same API call the page makes.
type InterrapidisimoAdapter struct {
	trackingURL string
	apiURL      string
	proxy       proxy.Settings
	client      *http.Client
	logger      *zap.Logger
}

// NewInterrapidisimoAdapter creates an InterrapidisimoAdapter.
func NewInterrapidisimoAdapter(trackingURL, apiURL string, proxySettings proxy.Settings) *InterrapidisimoAdapter {
	return &InterrapidisimoAdapter{
		trackingURL: trackingURL,
		apiURL:      apiURL,
		proxy:       proxySettings,
		client:      httpclient.NewClient(30 * time.Second),
		logger:      logger.Named("interrapidisimo"),
	}
}

// interResponse is the JSON shape of the carrier's tracking API.
type interResponse struct {
	EstadosGuia []struct {
		EstadoGuia struct {
			IdEstadoGuia          int    `json:"IdEstadoGuia"`
			DescripcionEstadoGuia string `json:"DescripcionEstadoGuia"`
			Ciudad                string `json:"Ciudad"`
			FechaGrabacion        string `json:"FechaGrabacion"`
		} `json:"EstadoGuia"`
	} `json:"EstadosGuia"`
	Success bool   `json:"Success"`
	Message string `json:"Message"`
}

// SupportsCarrier returns true for interrapidisimo shipments.
func (a *InterrapidisimoAdapter) SupportsCarrier(carrier string) bool {
	return carrier == carrierInterrapidisimo
}

// FetchHistory returns the shipment history, oldest first.
func (a *InterrapidisimoAdapter) FetchHistory(ctx context.Context, trackingNumber string) ([]tracking.TrackingEvent, error) {
	events, err := a.fetchDirect(ctx, trackingNumber)
	if err == nil {
		return events, nil
	}
	a.logger.Debug("direct carrier API failed, falling back to browser",
		zap.String("tracking_number", trackingNumber),
		zap.Error(err),
	)
	return a.fetchViaBrowser(ctx, trackingNumber)
}

// fetchDirect calls the carrier's tracking API without a browser.
func (a *InterrapidisimoAdapter) fetchDirect(ctx context.Context, trackingNumber string) ([]tracking.TrackingEvent, error) {
	payload, err := json.Marshal(map[string]string{"NumeroGuia": trackingNumber})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build carrier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("carrier request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("carrier API returned status %d", res.StatusCode)
	}

	var resp interResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to parse carrier response: %w", err)
	}
	return a.mapResponse(resp)
}

// fetchViaBrowser drives the public tracking page and intercepts the API
// call it makes. Chromium cannot authenticate against an upstream proxy on
// its own, so a credential-forwarding local proxy is started when needed.
func (a *InterrapidisimoAdapter) fetchViaBrowser(ctx context.Context, trackingNumber string) ([]tracking.TrackingEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var localProxyAddr string
	if a.proxy.HasProxy() && a.proxy.Username != "" && a.proxy.Password != "" {
		forwarder, err := proxy.NewForwardingProxy(a.proxy.FullURL())
		if err != nil {
			return nil, fmt.Errorf("failed to create proxy forwarder: %w", err)
		}
		localProxyAddr, err = forwarder.Start(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to start proxy forwarder: %w", err)
		}
		defer forwarder.Stop()
	} else if a.proxy.HasProxy() {
		localProxyAddr = a.proxy.HostPort()
	}

	l := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true)
	if localProxyAddr != "" {
		l = l.Proxy(localProxyAddr)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().Context(ctx).ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer browser.Close()

	page := browser.MustPage(a.trackingURL)
	page.MustElement("#inputGuide").MustWaitVisible()

	router := page.HijackRequests()
	defer router.MustStop()

	done := make(chan []byte)
	router.MustAdd("*/ObtenerRastreoGuiasClientePost", func(h *rod.Hijack) {
		client := http.DefaultClient
		if localProxyAddr != "" {
			proxyURL, err := url.Parse(localProxyAddr)
			if err == nil {
				client = &http.Client{
					Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
					Timeout:   30 * time.Second,
				}
			}
		}

		if err := h.LoadResponse(client, true); err != nil {
			a.logger.Error("Failed to load carrier response", zap.Error(err))
			return
		}
		done <- []byte(h.Response.Body())
	})
	go router.Run()

	page.MustElement("#inputGuide").MustInput(trackingNumber)
	page.MustElement(".search-button").MustClick()

	select {
	case body := <-done:
		var resp interResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse carrier response: %w", err)
		}
		return a.mapResponse(resp)
	case <-ctx.Done():
		return nil, fmt.Errorf("timeout waiting for carrier response: %w", ctx.Err())
	}
}

// mapResponse flattens the carrier payload into history events.
func (a *InterrapidisimoAdapter) mapResponse(resp interResponse) ([]tracking.TrackingEvent, error) {
	if !resp.Success {
		return nil, fmt.Errorf("carrier error: %s", resp.Message)
	}

	events := make([]tracking.TrackingEvent, 0, len(resp.EstadosGuia))
	for _, item := range resp.EstadosGuia {
		state := item.EstadoGuia

		// Carrier timestamps look like "2025-05-10T13:06:23.02", no zone.
		at, err := time.Parse("2006-01-02T15:04:05", state.FechaGrabacion[:min(len(state.FechaGrabacion), 19)])
		if err != nil {
			a.logger.Warn("Unparseable carrier timestamp",
				zap.String("value", state.FechaGrabacion),
				zap.Int("code", state.IdEstadoGuia),
			)
			continue
		}

		status := state.DescripcionEstadoGuia
		if state.Ciudad != "" {
			status = fmt.Sprintf("%s - %s", status, state.Ciudad)
		}
		events = append(events, tracking.TrackingEvent{Status: status, Timestamp: at})
	}
	return events, nil
}
