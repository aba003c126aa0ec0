// Package window covers the boundary to the OS window-automation backend:
// the Backend/Handle interfaces the rest of the core consumes, pattern
// matching, and the periodic re-scan that turns enumeration snapshots into
// found/lost events.
package window

import "fmt"

// ID identifies an OS window (CGWindowID on macOS, HWND on Windows).
type ID uint64

// Info is one enumerated window.
type Info struct {
	ID    ID
	Title string
}

// Rect is a sub-region for partial capture, relative to the window origin.
type Rect struct {
	Left, Top, Width, Height int
}

// Capture is raw screenshot pixel data in BGRA byte order.
type Capture struct {
	Data        []byte
	Width       uint32
	Height      uint32
	BytesPerRow uint32
}

// Handle is a reference to one OS window, providing the automation
// operations the capability sandbox mediates. Implementations live in the
// external automation backend; the core never injects input itself.
type Handle interface {
	ID() ID
	Title() string

	// Activate brings the window to the foreground; Deactivate releases it
	// after a tick. Both are best-effort.
	Activate()
	Deactivate()

	// ClickRel presses the primary button at a position relative to the
	// window bounds; ratios in [0,1].
	ClickRel(xRatio, yRatio float64)
	Tap(key string)
	TypeText(text string)

	// Capture grabs a sub-region of the window. ok is false when the
	// backend cannot capture (window gone, no permission).
	Capture(rect Rect) (*Capture, bool)
}

// Backend enumerates windows and opens handles. It is the external
// collaborator boundary; only the stub implementation ships here.
type Backend interface {
	Enumerate() ([]Info, error)
	Open(id ID) (Handle, error)
}

func (id ID) String() string { return fmt.Sprintf("%d", id) }
