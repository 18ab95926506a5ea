package waterfall

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestService_ShowInterstitial(t *testing.T) {
	sdk := newFakeSDK().script("a", succeedAfter(0))
	ctrl := newTestController(t, sdk, time.Second, "a")
	var holder InterstitialHolder = NewService(ctrl)

	if holder.ShowInterstitial(Surface{ID: "main"}) {
		t.Fatal("expected false, nothing loaded yet")
	}
	eventually(t, "a ready", func() bool { return ctrl.ReadyCount() == 1 })
	if !holder.ShowInterstitial(Surface{ID: "main"}) {
		t.Error("expected true once a is ready")
	}
}

func TestService_Reload(t *testing.T) {
	sdk := newFakeSDK().script("a", succeedAfter(0))
	svc := NewService(newTestController(t, sdk, time.Second, "a", "b"))

	got := svc.Reload(context.Background())

	if len(got) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(got))
	}
	if got[0].State != "ready" || got[1].State != "initial" {
		t.Errorf("unexpected statuses: %+v", got)
	}
	if sources := svc.Sources(); !reflect.DeepEqual(got, sources) {
		t.Errorf("Sources() = %+v, want %+v", sources, got)
	}
}
