package waterfall

import "context"

// InterstitialHolder is the entry point a UI surface uses to show an ad.
type InterstitialHolder interface {
	// ShowInterstitial returns true if an ad was displayed on surface now, and
	// false if none was ready; in that case a reload is already under way.
	ShowInterstitial(surface Surface) bool
}

// Service exposes the Controller to callers that should not drive SDK callbacks.
type Service struct {
	ctrl *Controller
}

var _ InterstitialHolder = (*Service)(nil)

// NewService returns a Service backed by ctrl.
func NewService(ctrl *Controller) *Service {
	return &Service{ctrl: ctrl}
}

// ShowInterstitial implements InterstitialHolder.
func (s *Service) ShowInterstitial(surface Surface) bool {
	return s.ctrl.Show(surface)
}

// Sources returns every source's status in priority order.
func (s *Service) Sources() []SourceStatus {
	return s.ctrl.Sources()
}

// Reload runs one load cycle synchronously, bounded by ctx, and returns the
// statuses observed afterwards.
func (s *Service) Reload(ctx context.Context) []SourceStatus {
	s.ctrl.TriggerLoadCycle(ctx)
	return s.ctrl.Sources()
}
