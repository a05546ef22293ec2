package puppy

import (
	"fmt"
	"strings"
)

// Kind is the verb of a textual action.
type Kind string

const (
	KindSound Kind = "play_sound"
	KindFace  Kind = "set_face"
	KindState Kind = "state"
	KindReset Kind = "reset"
)

// Action is a parsed textual action.
type Action struct {
	Kind  Kind
	Value string
}

func (a Action) String() string {
	if a.Kind == KindReset {
		return string(KindReset)
	}
	return string(a.Kind) + ":" + a.Value
}

// ParseAction reads "play_sound:<name>", "set_face:<name>",
// "state:<name>", or anything starting with "reset".
func ParseAction(s string) (Action, error) {
	for _, k := range []Kind{KindSound, KindFace, KindState} {
		if v, ok := strings.CutPrefix(s, string(k)+":"); ok {
			return Action{Kind: k, Value: v}, nil
		}
	}
	if strings.HasPrefix(s, string(KindReset)) {
		return Action{Kind: KindReset}, nil
	}
	return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}
