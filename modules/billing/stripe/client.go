package stripe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/flemzord/substackulous/internal/billing"
	"github.com/flemzord/substackulous/internal/provider"
	stripeapi "github.com/stripe/stripe-go/v83"
)

// newClient builds a Stripe API client pointed at cfg.BaseURL. The SDK does
// not retry.
func newClient(cfg Config, logger *slog.Logger) *stripeapi.Client {
	backends := stripeapi.NewBackendsWithConfig(&stripeapi.BackendConfig{
		URL:               stripeapi.String(cfg.BaseURL),
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripeapi.Int64(0),
		LeveledLogger:     slogLeveled{logger: logger},
	})
	return stripeapi.NewClient(cfg.SecretKey, stripeapi.WithBackends(backends))
}

// slogLeveled routes the SDK's log lines through slog.
type slogLeveled struct {
	logger *slog.Logger
}

func (l slogLeveled) Debugf(format string, v ...any) { l.log(slog.LevelDebug, format, v) }
func (l slogLeveled) Infof(format string, v ...any)  { l.log(slog.LevelDebug, format, v) }
func (l slogLeveled) Warnf(format string, v ...any)  { l.log(slog.LevelWarn, format, v) }
func (l slogLeveled) Errorf(format string, v ...any) { l.log(slog.LevelWarn, format, v) }

func (l slogLeveled) log(level slog.Level, format string, v []any) {
	if l.logger == nil {
		return
	}
	l.logger.Log(context.Background(), level, fmt.Sprintf(format, v...), "component", "stripe-sdk")
}

// checkoutParams builds the checkout session request for req. Return URLs
// fall back to the configured ones.
func checkoutParams(req billing.CheckoutRequest, cfg Config) *stripeapi.CheckoutSessionCreateParams {
	successURL, cancelURL := req.SuccessURL, req.CancelURL
	if successURL == "" {
		successURL = cfg.SuccessURL
	}
	if cancelURL == "" {
		cancelURL = cfg.CancelURL
	}

	params := &stripeapi.CheckoutSessionCreateParams{
		Mode: stripeapi.String(string(req.Plan.Mode)),
		LineItems: []*stripeapi.CheckoutSessionCreateLineItemParams{
			{Price: stripeapi.String(req.Plan.PriceID), Quantity: stripeapi.Int64(1)},
		},
		ClientReferenceID: stripeapi.String(req.UserID),
		SuccessURL:        stripeapi.String(successURL),
		CancelURL:         stripeapi.String(cancelURL),
	}
	params.AddMetadata("user_id", req.UserID)
	params.AddMetadata("plan_id", req.Plan.ID)

	if req.Email != "" {
		params.CustomerEmail = stripeapi.String(req.Email)
	}
	if req.Plan.Mode == billing.ModeSubscription {
		params.SubscriptionData = &stripeapi.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: map[string]string{"user_id": req.UserID, "plan_id": req.Plan.ID},
		}
	}
	return params
}

// CreateCheckoutSession implements billing.Provider.
func (m *Module) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (billing.CheckoutSession, error) {
	if req.UserID == "" {
		return billing.CheckoutSession{}, errors.New("stripe: checkout without user")
	}
	params := checkoutParams(req, m.config)
	if key := billing.IdempotencyKey(ctx); key != "" {
		params.SetIdempotencyKey(key)
	}

	sess, err := m.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return billing.CheckoutSession{}, classify(ctx, err)
	}
	return billing.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CancelSubscription implements billing.Provider.
func (m *Module) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if subscriptionID == "" {
		return errors.New("stripe: empty subscription id")
	}
	params := &stripeapi.SubscriptionCancelParams{}
	if key := billing.IdempotencyKey(ctx); key != "" {
		params.SetIdempotencyKey(key)
	}
	if _, err := m.client.V1Subscriptions.Cancel(ctx, subscriptionID, params); err != nil {
		return classify(ctx, err)
	}
	return nil
}

// classify maps SDK errors onto the provider and billing sentinels. The
// *stripe.Error stays in the chain for callers that need the details.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *stripeapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: stripe: %w", provider.ErrProviderDown, err)
	}

	switch status := apiErr.HTTPStatusCode; {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", provider.ErrRateLimit, err)
	case status >= 500:
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", provider.ErrAuthentication, err)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %w", billing.ErrNotFound, err)
	default:
		return err
	}
}
