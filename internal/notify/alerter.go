// Package notify implements the optional desktop alerting hook (§4.7):
// a local, operator-facing signal fired when the façade records a
// critical gotcha or a gotcha promotion attempt fails, completely
// decoupled from any dashboard or CLI surface.
//
// Grounded on the teacher's internal/notifications.ToastNotifier: the
// Windows-only go-toast call and its "unsupported platform is a
// logged no-op, never a propagated error" posture are kept; the
// dashboard-banner/terminal-flash/external-webhook channels that
// toast.go's sibling files implement are dropped, since this layer has
// no dashboard or CLI surface to report into (spec.md §1 Non-goals).
package notify

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"
)

// CriticalAlerter fires a desktop toast for the two conditions
// severe enough to want an operator's attention without a dashboard:
// a critical-severity gotcha being recorded, and a failed promotion
// attempt (the gateway makes one attempt per gotcha and does not retry).
type CriticalAlerter struct {
	appID string
}

// NewCriticalAlerter returns an alerter identified as appID in the
// toast notification. An empty appID falls back to a default.
func NewCriticalAlerter(appID string) *CriticalAlerter {
	if appID == "" {
		appID = "jobmemory"
	}
	return &CriticalAlerter{appID: appID}
}

// IsSupported reports whether this platform can show toasts at all.
func (a *CriticalAlerter) IsSupported() bool {
	return runtime.GOOS == "windows"
}

// NotifyCriticalGotcha fires a toast for a newly recorded
// severity=critical gotcha. A non-Windows platform or a failed Push
// is reported back to the caller to log; it is never treated as a
// reason to fail the gotcha recording itself.
func (a *CriticalAlerter) NotifyCriticalGotcha(jobID, description string) error {
	if !a.IsSupported() {
		return fmt.Errorf("desktop alerts not supported on %s", runtime.GOOS)
	}
	notification := toast.Notification{
		AppID:   a.appID,
		Title:   "Critical gotcha recorded",
		Message: fmt.Sprintf("%s: %s", jobID, description),
		Audio:   toast.IM,
	}
	return notification.Push()
}

// NotifyPromotionFailed fires a toast when a gotcha promotion could
// not be delivered to the knowledge store.
func (a *CriticalAlerter) NotifyPromotionFailed(jobID, gotchaID string, cause error) error {
	if !a.IsSupported() {
		return fmt.Errorf("desktop alerts not supported on %s", runtime.GOOS)
	}
	notification := toast.Notification{
		AppID:   a.appID,
		Title:   "Gotcha promotion failed",
		Message: fmt.Sprintf("%s/%s: %v", jobID, gotchaID, cause),
		Audio:   toast.Default,
	}
	return notification.Push()
}
