//go:build linux

package tap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/mkessler/parlo/internal/keys"
)

// Linux input event codes for modifier keys.
const (
	codeLeftCtrl   = 29
	codeLeftShift  = 42
	codeRightShift = 54
	codeLeftAlt    = 56
	codeRightCtrl  = 97
	codeRightAlt   = 100
	codeLeftMeta   = 125
	codeRightMeta  = 126
)

const (
	evKey = 0x01

	valueKeyUp     = 0
	valueKeyDown   = 1
	valueKeyRepeat = 2
)

// inputEvent mirrors struct input_event on 64-bit Linux.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// modifierCodes maps left/right physical modifier keys onto the clean
// app-level modifier set; everything else in the kernel bitmap is
// discarded here, at the boundary.
var modifierCodes = map[uint16]keys.Modifiers{
	codeLeftCtrl:   keys.ModCtrl,
	codeRightCtrl:  keys.ModCtrl,
	codeLeftShift:  keys.ModShift,
	codeRightShift: keys.ModShift,
	codeLeftAlt:    keys.ModAlt,
	codeRightAlt:   keys.ModAlt,
	codeLeftMeta:   keys.ModSuper,
	codeRightMeta:  keys.ModSuper,
}

// EvdevSource reads raw key transitions from /dev/input event devices.
// It observes events rather than consuming them: evdev offers no
// per-event swallowing, so chord keystrokes also reach the focused
// application. Modifier state is merged across all open devices.
type EvdevSource struct {
	logger *slog.Logger
	// explicit device paths; empty means scan for keyboards
	paths []string

	events chan KeyEvent

	mu      sync.Mutex
	files   []*os.File
	started bool
	closed  bool
	// physical modifier keys currently held, by input code
	heldMods map[uint16]struct{}

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewEvdevSource builds a source over the given device paths, or over
// all detected keyboards when paths is empty.
func NewEvdevSource(logger *slog.Logger, paths []string) *EvdevSource {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &EvdevSource{
		logger:   logger,
		paths:    paths,
		events:   make(chan KeyEvent, 256),
		heldMods: make(map[uint16]struct{}),
	}
}

// Events yields normalized key transitions in kernel-reported order.
func (s *EvdevSource) Events() <-chan KeyEvent {
	return s.events
}

// Start opens the keyboard devices and begins event delivery.
func (s *EvdevSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.closed {
		return ErrTapInstall
	}

	paths := s.paths
	if len(paths) == 0 {
		detected, err := detectKeyboards()
		if err != nil {
			return err
		}
		paths = detected
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: no keyboard devices found under /dev/input", ErrTapInstall)
	}

	var permissionFailure bool
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				permissionFailure = true
				continue
			}
			s.logger.Warn("skip input device", "path", path, "error", err.Error())
			continue
		}
		s.files = append(s.files, file)
	}

	if len(s.files) == 0 {
		if permissionFailure {
			return fmt.Errorf("%w: cannot open /dev/input devices (membership in the input group is required)", ErrPermissionDenied)
		}
		return fmt.Errorf("%w: no usable keyboard devices", ErrTapInstall)
	}

	s.started = true
	for _, file := range s.files {
		s.wg.Add(1)
		go s.readLoop(ctx, file)
	}

	go func() {
		s.wg.Wait()
		close(s.events)
	}()

	return nil
}

// Close releases all devices and ends event delivery.
func (s *EvdevSource) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		files := s.files
		s.files = nil
		started := s.started
		s.mu.Unlock()

		for _, file := range files {
			_ = file.Close()
		}
		if !started {
			close(s.events)
		}
	})
	return nil
}

// readLoop decodes input_event records from one device until it fails
// or the source closes.
func (s *EvdevSource) readLoop(ctx context.Context, file *os.File) {
	defer s.wg.Done()

	eventSize := int(unsafe.Sizeof(inputEvent{}))
	buf := make([]byte, eventSize*64)

	for {
		n, err := file.Read(buf)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, fs.ErrClosed) {
				s.logger.Warn("input device read ended", "path", file.Name(), "error", err.Error())
			}
			return
		}

		for offset := 0; offset+eventSize <= n; offset += eventSize {
			raw := (*inputEvent)(unsafe.Pointer(&buf[offset]))
			ev, ok := s.translate(*raw)
			if !ok {
				continue
			}
			if !s.forward(ctx, ev) {
				return
			}
		}
	}
}

// forward hands one event to the consumer. Auto-repeats are shed when
// the channel is full; press and release transitions are never dropped,
// since a lost edge can leave a gesture stuck. Returns false once the
// source context ends.
func (s *EvdevSource) forward(ctx context.Context, ev KeyEvent) bool {
	if ev.Kind == KeyRepeat {
		select {
		case s.events <- ev:
		default:
		}
		return true
	}
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// translate folds one kernel event into the normalized stream,
// maintaining the merged modifier set.
func (s *EvdevSource) translate(raw inputEvent) (KeyEvent, bool) {
	if raw.Type != evKey {
		return KeyEvent{}, false
	}

	at := time.Unix(raw.Sec, raw.Usec*int64(time.Microsecond))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, isModifier := modifierCodes[raw.Code]; isModifier {
		switch raw.Value {
		case valueKeyDown:
			s.heldMods[raw.Code] = struct{}{}
		case valueKeyUp:
			delete(s.heldMods, raw.Code)
		default:
			// modifier auto-repeat carries no state change
			return KeyEvent{}, false
		}
		return KeyEvent{
			Kind:      ModChange,
			Code:      keys.CodeNone,
			Modifiers: s.heldModifiersLocked(),
			Time:      at,
		}, true
	}

	var kind EventKind
	switch raw.Value {
	case valueKeyDown:
		kind = KeyDown
	case valueKeyUp:
		kind = KeyUp
	case valueKeyRepeat:
		kind = KeyRepeat
	default:
		return KeyEvent{}, false
	}

	return KeyEvent{
		Kind:      kind,
		Code:      keys.Code(raw.Code),
		Modifiers: s.heldModifiersLocked(),
		Time:      at,
	}, true
}

func (s *EvdevSource) heldModifiersLocked() keys.Modifiers {
	var mods keys.Modifiers
	for code := range s.heldMods {
		mods |= modifierCodes[code]
	}
	return mods
}

// detectKeyboards returns event devices that advertise EV_KEY support
// including the letter-key range.
func detectKeyboards() ([]string, error) {
	entries, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, fmt.Errorf("%w: scan /dev/input: %v", ErrTapInstall, err)
	}
	sort.Strings(entries)

	var (
		keyboards         []string
		permissionFailure bool
	)
	for _, path := range entries {
		fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			if errors.Is(err, unix.EACCES) {
				permissionFailure = true
			}
			continue
		}
		isKeyboard := supportsLetterKeys(fd)
		_ = unix.Close(fd)
		if isKeyboard {
			keyboards = append(keyboards, path)
		}
	}

	if len(keyboards) == 0 && permissionFailure {
		return nil, fmt.Errorf("%w: cannot probe /dev/input devices", ErrPermissionDenied)
	}
	return keyboards, nil
}

// supportsLetterKeys checks the EVIOCGBIT(EV_KEY) bitmap for KEY_A.
func supportsLetterKeys(fd int) bool {
	const keyA = 30
	var bits [96]byte // covers KEY_MAX/8

	// EVIOCGBIT(EV_KEY, len) = _IOC(_IOC_READ, 'E', 0x20+EV_KEY, len)
	req := uintptr(2)<<30 | uintptr(len(bits))<<16 | uintptr('E')<<8 | uintptr(0x20+evKey)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(unsafe.Pointer(&bits[0])))
	if errno != 0 {
		return false
	}
	return bits[keyA/8]&(1<<(keyA%8)) != 0
}
