package engine

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/your-org/classcam/internal/tracking"
	"github.com/your-org/classcam/internal/vision"
)

type fixedHands struct {
	hands []vision.Hand
	err   error
	calls int
}

func (d *fixedHands) DetectHands(ctx context.Context, img image.Image) ([]vision.Hand, error) {
	d.calls++
	return d.hands, d.err
}

func wristAt(x, y float32) vision.Hand {
	return vision.Hand{Landmarks: [][2]float32{{x, y}}, Score: 0.9}
}

func openPalmAt(x, y float32) vision.Hand {
	pts := make([][2]float32, 21)
	for i := range pts {
		pts[i] = [2]float32{x, y - 10}
	}
	pts[vision.HandWrist] = [2]float32{x, y}
	for k, i := range []int{vision.HandThumbTip, vision.HandIndexTip, vision.HandMiddleTip, vision.HandRingTip, vision.HandPinkyTip} {
		pts[i] = [2]float32{x - 40 + 20*float32(k), y - 60}
	}
	return vision.Hand{Landmarks: pts, Score: 0.9}
}

func newClassroom(t *testing.T) (*harness, *fixedHands, *time.Time) {
	t.Helper()
	h := newHarness(t, tracking.DefaultConfig())
	h.enroll(t, "Grade10-Newton", "Ada", "S-001", []float32{1, 0, 0})
	h.enroll(t, "Grade10-Newton", "Bob", "S-002", []float32{0, 1, 0})
	h.det.dets = []vision.Detection{
		det(100, 200, 200, 300, 1, 0, 0),
		det(400, 200, 500, 300, 0, 1, 0),
	}
	hands := &fixedHands{}
	h.eng.hands = hands
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	h.eng.now = func() time.Time { return now }
	return h, hands, &now
}

func modalOwner(t *testing.T, res RecognizeResult) *Face {
	t.Helper()
	var owner *Face
	for i := range res.Faces {
		if res.Faces[i].Modal == nil {
			continue
		}
		if owner != nil {
			t.Fatalf("more than one face carries a modal: %+v", res.Faces)
		}
		owner = &res.Faces[i]
	}
	return owner
}

func TestParticipation_HandAttributedByZone(t *testing.T) {
	ctx := context.Background()
	h, hands, _ := newClassroom(t)
	hands.hands = []vision.Hand{wristAt(470, 150)}

	res, err := h.eng.Recognize(ctx, testFrame, "", "room-101")
	if err != nil {
		t.Fatal(err)
	}
	f := modalOwner(t, res)
	if f == nil || f.ExternalID != "S-002" {
		t.Fatalf("modal owner = %+v", f)
	}
	m := f.Modal
	if !m.ModalActive || m.TrackID != f.TrackID || m.PersonName != "Bob" || m.HandSide != "right" || m.HandPosition != "raised" {
		t.Errorf("modal = %+v", m)
	}
	if m.Zone != [4]float32{250, 0, 640, 250} || m.FaceBBox != f.BBox {
		t.Errorf("modal geometry = %v %v", m.Zone, m.FaceBBox)
	}
	if len(res.Hands) != 1 {
		t.Errorf("hands = %d, want 1", len(res.Hands))
	}

	raised := 0
	for _, ev := range h.notifier.events {
		if ev.HandRaised {
			raised++
			if ev.ExternalID != "S-002" {
				t.Errorf("hand raised event for %s", ev.ExternalID)
			}
		}
	}
	if raised != 1 {
		t.Errorf("hand raised events = %d, want 1", raised)
	}
}

func TestParticipation_NoHandInAnyZone(t *testing.T) {
	h, hands, _ := newClassroom(t)
	hands.hands = []vision.Hand{wristAt(300, 470), {}}

	res, err := h.eng.Recognize(context.Background(), testFrame, "", "room-101")
	if err != nil {
		t.Fatal(err)
	}
	if f := modalOwner(t, res); f != nil {
		t.Errorf("unexpected modal on %+v", f)
	}
	if h.eng.sessions["room-101"].modal != nil {
		t.Error("session should have no open modal")
	}
}

func TestParticipation_ModalLifecycle(t *testing.T) {
	ctx := context.Background()
	h, hands, now := newClassroom(t)
	hands.hands = []vision.Hand{wristAt(120, 150)}

	res, _ := h.eng.Recognize(ctx, testFrame, "", "room-101")
	ada := modalOwner(t, res)
	if ada == nil || ada.ExternalID != "S-001" || ada.Modal.HandSide != "left" {
		t.Fatalf("first modal = %+v", ada)
	}
	opened := ada.Modal.Timestamp
	track := ada.TrackID

	*now = now.Add(2 * time.Second)
	hands.hands = []vision.Hand{wristAt(470, 150)}
	res, _ = h.eng.Recognize(ctx, testFrame, "", "room-101")
	if f := modalOwner(t, res); f == nil || f.TrackID != track || !f.Modal.Timestamp.Equal(opened) {
		t.Fatalf("open modal should stay on Ada, got %+v", f)
	}

	tests := []struct {
		name    string
		session string
		track   string
	}{
		{"unknown session", "room-999", track},
		{"other track", "room-101", "424242"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.eng.CloseModal(tt.session, tt.track); !IsKind(err, KindNotFound) {
				t.Errorf("CloseModal(%s, %s) = %v, want not found", tt.session, tt.track, err)
			}
		})
	}
	if err := h.eng.CloseModal("room-101", track); err != nil {
		t.Fatalf("CloseModal() error = %v", err)
	}
	if err := h.eng.CloseModal("room-101", track); !IsKind(err, KindNotFound) {
		t.Errorf("second CloseModal() = %v", err)
	}

	hands.hands = []vision.Hand{wristAt(120, 150)}
	res, _ = h.eng.Recognize(ctx, testFrame, "", "room-101")
	if f := modalOwner(t, res); f != nil {
		t.Errorf("closed track reopened inside the cooldown: %+v", f)
	}

	hands.hands = []vision.Hand{wristAt(120, 150), wristAt(470, 150)}
	res, _ = h.eng.Recognize(ctx, testFrame, "", "room-101")
	if f := modalOwner(t, res); f == nil || f.ExternalID != "S-002" {
		t.Fatalf("another track should open a modal during the cooldown, got %+v", f)
	}
	if err := h.eng.CloseModal("room-101", modalOwner(t, res).TrackID); err != nil {
		t.Fatal(err)
	}

	*now = now.Add(11 * time.Second)
	hands.hands = []vision.Hand{wristAt(120, 150)}
	res, _ = h.eng.Recognize(ctx, testFrame, "", "room-101")
	if f := modalOwner(t, res); f == nil || f.TrackID != track {
		t.Errorf("modal should reopen after the cooldown, got %+v", f)
	}
}

func TestParticipation_RequireOpenPalm(t *testing.T) {
	h, hands, _ := newClassroom(t)
	h.eng.participation.RequireOpenPalm = true

	hands.hands = []vision.Hand{wristAt(120, 150)}
	res, _ := h.eng.Recognize(context.Background(), testFrame, "", "room-101")
	if f := modalOwner(t, res); f != nil {
		t.Fatalf("wrist-only hand opened a modal: %+v", f)
	}

	hands.hands = []vision.Hand{openPalmAt(120, 150)}
	res, _ = h.eng.Recognize(context.Background(), testFrame, "", "room-101")
	f := modalOwner(t, res)
	if f == nil || f.Modal.HandPosition != "open_palm" {
		t.Errorf("open palm modal = %+v", f)
	}
}

func TestParticipation_Toggle(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		hands     bool
		err       error
		wantCalls int
	}{
		{"default on", context.Background(), true, nil, 1},
		{"enabled", WithHandDetection(context.Background(), true), true, nil, 1},
		{"disabled", WithHandDetection(context.Background(), false), true, nil, 0},
		{"no detector", context.Background(), false, nil, 0},
		{"detector error", context.Background(), true, errors.New("model crashed"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, hands, _ := newClassroom(t)
			hands.hands = []vision.Hand{wristAt(120, 150)}
			hands.err = tt.err
			if !tt.hands {
				h.eng.hands = nil
			}

			res, err := h.eng.Recognize(tt.ctx, testFrame, "", "room-101")
			if err != nil {
				t.Fatalf("Recognize() error = %v", err)
			}
			if hands.calls != tt.wantCalls {
				t.Errorf("hand detector calls = %d, want %d", hands.calls, tt.wantCalls)
			}
			wantModal := tt.wantCalls == 1 && tt.err == nil
			if got := modalOwner(t, res) != nil; got != wantModal {
				t.Errorf("modal opened = %v, want %v", got, wantModal)
			}
			if len(res.Faces) != 2 || !res.Faces[0].Recognized {
				t.Errorf("recognition must not depend on hands: %+v", res.Faces)
			}
		})
	}
}
