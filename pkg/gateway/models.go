package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/dskvich/scholarai/pkg/domain"
	"github.com/dskvich/scholarai/pkg/logger"
)

// ResolveModel maps a preference label ("fast", "deep", "Gemini 1.5 Pro" or
// a concrete model id) to a model id the provider currently serves.
func (g *Gateway) ResolveModel(ctx context.Context, preferredLabel string) (string, error) {
	models, err := g.listModels(ctx, false)
	if err != nil {
		return "", err
	}
	return g.pick(preferredLabel, models, nil)
}

// Models returns the cached model list, fetching it on first use.
func (g *Gateway) Models(ctx context.Context) ([]string, error) {
	models, err := g.listModels(ctx, false)
	return slices.Clone(models), err
}

// fallbackModel refreshes the model list and resolves again without the
// model the provider just refused.
func (g *Gateway) fallbackModel(ctx context.Context, preferredLabel, failed string) (string, error) {
	models, err := g.listModels(ctx, true)
	if err != nil {
		return "", err
	}
	return g.pick(preferredLabel, models, []string{failed})
}

func (g *Gateway) listModels(ctx context.Context, force bool) ([]string, error) {
	if !force {
		g.mu.RLock()
		models, loaded := g.models, g.loaded
		g.mu.RUnlock()
		if loaded {
			return models, nil
		}
	}

	// Concurrent callers share one in-flight query. The query itself is not
	// bound to any single caller so one caller leaving does not fail the rest.
	ch := g.refresh.DoChan("models", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.CallTimeout)
		defer cancel()

		models, err := g.provider.ListModels(fetchCtx)
		if err != nil {
			return nil, err
		}
		models = lo.Uniq(models)
		slices.Sort(models)

		g.mu.Lock()
		g.models, g.loaded = models, true
		g.mu.Unlock()

		slog.InfoContext(ctx, "Model list refreshed", "provider", g.provider.Name(), "count", len(models))
		return models, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			slog.ErrorContext(ctx, "Listing models", "provider", g.provider.Name(), logger.Err(res.Err))
			return nil, &domain.Error{
				Kind:    domain.KindProviderUnreachable,
				Message: fmt.Sprintf("listing %s models", g.provider.Name()),
				Err:     res.Err,
			}
		}
		return res.Val.([]string), nil
	}
}

// pick chooses a model for label among models, skipping exclude. Order of
// preference: the label itself as a model id, the tier's candidates in
// configured order, any model named like the tier, any model at all.
func (g *Gateway) pick(label string, models, exclude []string) (string, error) {
	available, _ := lo.Difference(models, exclude)
	if len(available) == 0 {
		return "", &domain.Error{
			Kind:    domain.KindModelUnavailable,
			Message: fmt.Sprintf("%s serves no usable model", g.provider.Name()),
		}
	}

	label = strings.TrimSpace(label)
	if lo.Contains(available, label) {
		return label, nil
	}

	tier := domain.ParseTier(label)
	candidates := lo.Ternary(tier == domain.TierDeep, g.cfg.DeepModels, g.cfg.FastModels)

	for _, c := range candidates {
		if lo.Contains(available, c) {
			return c, nil
		}
		if id, ok := lo.Find(available, func(id string) bool { return strings.HasPrefix(id, c+"-") }); ok {
			return id, nil
		}
	}

	for _, kw := range tier.Keywords() {
		if id, ok := lo.Find(available, func(id string) bool { return strings.Contains(id, kw) }); ok {
			return id, nil
		}
	}

	return available[0], nil
}
