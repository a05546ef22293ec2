package puppy

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-pupper/pkg/tools"
)

// Tools registers the robot action tools on a new registry.
func Tools(c *Client) *tools.Local {
	l := tools.NewLocal("puppy")

	l.Register(tools.Tool{
		Name:        "play_sound",
		Description: "Play a sound on the robot.\nExample:\nplay_sound(sound='bark')",
		InputSchema: tools.Object(map[string]tools.Property{
			"sound": {Type: "string", Description: "Name of the sound to play"},
		}, "sound"),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sound, err := stringArg(args, "sound")
		if err != nil {
			return failure(err), nil
		}
		return outcome(c.PlaySound(ctx, sound), "sound", sound), nil
	})

	l.Register(tools.Tool{
		Name:        "set_face",
		Description: "Show a face on the robot's display.\nExample:\nset_face(face='happy')",
		InputSchema: tools.Object(map[string]tools.Property{
			"face": {Type: "string", Description: "Name of the face to show"},
		}, "face"),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		face, err := stringArg(args, "face")
		if err != nil {
			return failure(err), nil
		}
		return outcome(c.SetFace(ctx, face), "face", face), nil
	})

	l.Register(tools.Tool{
		Name:        "set_state",
		Description: "Move the robot into a named state (e.g. sit, proud, wink).\nExample:\nset_state(state='sit')",
		InputSchema: tools.Object(map[string]tools.Property{
			"state": {Type: "string", Description: "Target state name"},
		}, "state"),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		state, err := stringArg(args, "state")
		if err != nil {
			return failure(err), nil
		}
		return outcome(c.SetState(ctx, state), "state", state), nil
	})

	l.Register(tools.Tool{
		Name:        "reset_state",
		Description: "Reset the robot to its idle state.\nExample:\nreset_state()",
	}, func(ctx context.Context, _ map[string]any) (any, error) {
		return outcome(c.Reset(ctx), "", ""), nil
	})

	l.Register(tools.Tool{
		Name:        "get_available_actions",
		Description: "List the states, faces, and sounds the robot supports.\nExample:\nget_available_actions()",
	}, func(ctx context.Context, _ map[string]any) (any, error) {
		out := map[string]any{}
		for key, path := range map[string]string{"states": PathStates, "faces": PathFaces, "sounds": PathSounds} {
			raw, err := c.Options(ctx, path)
			if err != nil {
				return failure(err), nil
			}
			out[key] = raw
		}
		return out, nil
	})

	return l
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func outcome(err error, key, value string) map[string]any {
	if err != nil {
		return failure(err)
	}
	out := map[string]any{"success": true}
	if key != "" {
		out[key] = value
	}
	return out
}

func failure(err error) map[string]any {
	return map[string]any{"success": false, "error": err.Error()}
}
