// Package capture coordinates the camera lifecycle, live face-detection
// polling and submission of a captured still. The session is a state
// machine; the camera and a captured image are mutually exclusive
// resources, and every exit path releases the camera.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/veriface/attendance/internal/face"
)

// State is the capture session lifecycle position.
type State string

const (
	StateCameraOff  State = "camera_off"
	StateCameraOn   State = "camera_on"
	StateCaptured   State = "captured"
	StateSubmitting State = "submitting"
	StateAccepted   State = "accepted"
	StateRejected   State = "rejected"
)

var (
	// ErrInvalidTransition means the requested action is not allowed from
	// the current state.
	ErrInvalidTransition = errors.New("invalid capture session transition")

	// ErrNoFaceDetected means capture was requested while the live preview
	// has no detected face.
	ErrNoFaceDetected = errors.New("no face detected in preview")

	// ErrSubmissionPending means a submission is already in flight;
	// re-submission is blocked until it resolves.
	ErrSubmissionPending = errors.New("submission already in progress")

	// ErrSessionClosed means the session was closed.
	ErrSessionClosed = errors.New("capture session closed")
)

// Camera is a scoped exclusive resource producing encoded still frames.
type Camera interface {
	// Start acquires the device.
	Start(ctx context.Context) error
	// Frame samples the current preview frame as an encoded image.
	Frame(ctx context.Context) ([]byte, error)
	// Stop releases the device. Stop on a stopped camera is a no-op.
	Stop() error
}

// Submitter delivers a captured still for verification. A nil error means
// the attempt was accepted.
type Submitter interface {
	Submit(ctx context.Context, image []byte) error
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(ctx context.Context, image []byte) error

func (f SubmitterFunc) Submit(ctx context.Context, image []byte) error { return f(ctx, image) }

// Options tune the session. Zero values fall back to defaults.
type Options struct {
	PollInterval  time.Duration // detection sampling period, default 1s
	SubmitTimeout time.Duration // bound on one submission, default 30s
	MaxImageBytes int64         // encoded size limit, default 5 MiB
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = 30 * time.Second
	}
	if o.MaxImageBytes <= 0 {
		o.MaxImageBytes = 5 << 20
	}
	return o
}

// Session drives one attendance capture attempt.
type Session struct {
	camera    Camera
	detector  face.Detector
	submitter Submitter
	opts      Options

	mu           sync.Mutex
	state        State
	faceDetected bool
	detectErr    error // last detection failure, distinct from "no face"
	captured     []byte
	closed       bool
	submitting   bool

	pollCancel context.CancelFunc
	pollDone   chan struct{}

	// submitWG tracks the in-flight submission so Close can let it finish.
	submitWG sync.WaitGroup
}

// NewSession creates a session in StateCameraOff.
func NewSession(camera Camera, detector face.Detector, submitter Submitter, opts Options) *Session {
	return &Session{
		camera:    camera,
		detector:  detector,
		submitter: submitter,
		opts:      opts.withDefaults(),
		state:     StateCameraOff,
	}
}

// State returns the current lifecycle position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FaceDetected reports whether the latest poll saw a face, and any
// detection failure separate from "no face".
func (s *Session) FaceDetected() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faceDetected, s.detectErr
}

// CapturedImage returns the held still, or nil when no capture is held.
func (s *Session) CapturedImage() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captured
}

// StartCamera acquires the camera and starts the detection poller.
func (s *Session) StartCamera(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.state != StateCameraOff && s.state != StateRejected {
		return fmt.Errorf("%w: cannot start camera from %s", ErrInvalidTransition, s.state)
	}

	if err := s.camera.Start(ctx); err != nil {
		return fmt.Errorf("starting camera: %w", err)
	}

	s.state = StateCameraOn
	s.faceDetected = false
	s.detectErr = nil
	s.captured = nil
	s.startPollerLocked()
	return nil
}

// StopCamera releases the camera and cancels the poller.
func (s *Session) StopCamera() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCameraOn {
		return fmt.Errorf("%w: cannot stop camera from %s", ErrInvalidTransition, s.state)
	}
	s.releaseCameraLocked()
	s.state = StateCameraOff
	return nil
}

// Capture takes a still from the preview. Allowed only while a face is
// detected; the camera is released immediately so the device and the held
// image never coexist.
func (s *Session) Capture(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.state != StateCameraOn {
		return fmt.Errorf("%w: cannot capture from %s", ErrInvalidTransition, s.state)
	}
	if !s.faceDetected {
		return ErrNoFaceDetected
	}

	frame, err := s.camera.Frame(ctx)
	if err != nil {
		return fmt.Errorf("sampling frame: %w", err)
	}

	s.releaseCameraLocked()
	s.captured = frame
	s.state = StateCaptured
	return nil
}

// Retake discards the held still and restarts the camera.
func (s *Session) Retake(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.state != StateCaptured && s.state != StateRejected {
		return fmt.Errorf("%w: cannot retake from %s", ErrInvalidTransition, s.state)
	}

	if err := s.camera.Start(ctx); err != nil {
		return fmt.Errorf("starting camera: %w", err)
	}

	s.captured = nil
	s.state = StateCameraOn
	s.faceDetected = false
	s.detectErr = nil
	s.startPollerLocked()
	return nil
}

// Submit sends the held still for verification under the submit timeout.
// The pending submission blocks re-submission. Outcomes:
//   - nil: StateAccepted, terminal.
//   - decode or size failure: the still is discarded and the session drops
//     to StateCameraOff; the user must recapture.
//   - any other failure (mismatch, backend, timeout): StateRejected with
//     the still retained, so it can be resubmitted or retaken.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.submitting {
		s.mu.Unlock()
		return ErrSubmissionPending
	}
	if s.state != StateCaptured && s.state != StateRejected {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot submit from %s", ErrInvalidTransition, s.state)
	}

	image := s.captured
	if int64(len(image)) > s.opts.MaxImageBytes {
		// Pre-network guard; an oversized frame can only be fixed by a
		// fresh capture.
		s.captured = nil
		s.state = StateCameraOff
		s.mu.Unlock()
		return fmt.Errorf("%w: %d bytes over %d limit", face.ErrTooLarge, len(image), s.opts.MaxImageBytes)
	}

	s.submitting = true
	s.state = StateSubmitting
	s.submitWG.Add(1)
	s.mu.Unlock()

	submitCtx, cancel := context.WithTimeout(ctx, s.opts.SubmitTimeout)
	err := s.submitter.Submit(submitCtx, image)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	s.submitWG.Done()

	if err == nil {
		s.captured = nil
		s.state = StateAccepted
		return nil
	}

	if errors.Is(err, face.ErrDecode) || errors.Is(err, face.ErrTooLarge) {
		s.captured = nil
		s.state = StateCameraOff
		return err
	}

	// Same still may be resubmitted.
	s.state = StateRejected
	return err
}

// Close tears the session down from any state: the poller is cancelled and
// the camera released deterministically. An in-flight submission is allowed
// to run to completion rather than being hard-cancelled.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.releaseCameraLocked()
	s.captured = nil
	s.mu.Unlock()

	s.submitWG.Wait()
	return nil
}

// startPollerLocked launches the detection poller for the current camera
// acquisition. Caller holds the lock.
func (s *Session) startPollerLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.pollCancel = cancel
	s.pollDone = done

	go s.poll(ctx, done)
}

// releaseCameraLocked cancels the poller and stops the camera. Caller holds
// the lock. Safe to call from any state.
func (s *Session) releaseCameraLocked() {
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
		s.pollDone = nil
	}
	if err := s.camera.Stop(); err != nil {
		log.Printf("Failed to stop camera: %v", err)
	}
}

// poll samples a preview frame once per interval and runs face detection on
// it. Results only flip the noFace/faceDetected flag; capture stays an
// explicit user action.
func (s *Session) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Session) pollOnce(ctx context.Context) {
	frame, err := s.camera.Frame(ctx)
	if err != nil {
		s.recordDetection(false, fmt.Errorf("%w: %v", face.ErrDetection, err))
		return
	}

	present, err := s.detector.Detect(ctx, frame)
	if err != nil {
		s.recordDetection(false, err)
		return
	}
	s.recordDetection(present, nil)
}

func (s *Session) recordDetection(present bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A stale poll result must not resurrect after the camera is gone.
	if s.state != StateCameraOn {
		return
	}
	s.faceDetected = present
	s.detectErr = err
}
