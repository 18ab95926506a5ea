package waterfall

// SourceID identifies one ad-serving unit (e.g. a mediation ad unit id).
type SourceID string

// Handle is an opaque, SDK-owned ad object. The controller never inspects it.
type Handle any

// Surface is the UI surface an interstitial is displayed on.
type Surface struct {
	ID        string `json:"surface_id"`
	Placement string `json:"placement,omitempty"`
}

// SDK is the ad-serving SDK consumed by the Controller.
// RequestLoad and Display are fire-and-forget; outcomes arrive on the Listener
// passed to CreateHandle, possibly from another goroutine.
type SDK interface {
	// CreateHandle is called exactly once per source, when the controller is built.
	CreateHandle(id SourceID, l Listener) Handle
	RequestLoad(h Handle)
	IsReady(h Handle) bool
	Display(h Handle, s Surface)
}

// Listener receives SDK callbacks. Controller implements it.
type Listener interface {
	OnLoadSucceeded(id SourceID, h Handle)
	OnLoadFailed(id SourceID, err error)
	OnDisplayed(id SourceID)
	OnClicked(id SourceID)
	OnDisplayDismissed(id SourceID)
	OnDisplayFailed(id SourceID, err error)
}
