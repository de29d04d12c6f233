package stream

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/queueio/pkg/event"
	"github.com/cuemby/queueio/pkg/result"
)

// envelope is the wire framing for a serializable event: a type tag
// plus its JSON-encoded fields, so a remote subscriber can recover the
// concrete event type without a shared schema registry. Origin is the
// publishing Stream's instance id, letting that Stream skip its own
// journal loopback.
type envelope struct {
	Type    string          `json:"type"`
	Origin  string          `json:"origin,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type resultPayload struct {
	Ok    bool   `json:"ok"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// decodeErr rebuilds a transported failure, keeping its classification
// when the publishing side attached one.
func decodeErr(kind, message string) error {
	if kind != "" {
		return result.Errorf(result.Kind(kind), message, nil)
	}
	return fmt.Errorf("%s", message)
}

func encode(e event.Event, origin string) ([]byte, error) {
	var payload any
	switch ev := e.(type) {
	case *event.Submitted:
		payload = ev
	case *event.Started:
		payload = ev
	case *event.Suspended:
		payload = ev
	case *event.Continued:
		payload = ev
	case *event.Threw:
		payload = struct {
			ID   string `json:"ID"`
			Err  string `json:"Err"`
			Kind string `json:"Kind,omitempty"`
		}{ID: ev.InvocationID(), Err: ev.Err.Error(), Kind: string(result.KindOf(ev.Err))}
	case *event.Resumed:
		payload = ev
	case *event.Completed:
		value, err := ev.Result.Unwrap()
		rp := resultPayload{Ok: ev.Result.IsOk(), Value: value}
		if err != nil {
			rp.Error = err.Error()
			rp.Kind = string(result.KindOf(err))
		}
		payload = struct {
			ID     string        `json:"ID"`
			Result resultPayload `json:"Result"`
		}{ID: ev.InvocationID(), Result: rp}
	default:
		return nil, fmt.Errorf("stream: event type %T is not serializable", e)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: e.Type(), Origin: origin, Payload: body})
}

func decode(body []byte) (event.Event, string, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, "", err
	}
	e, err := decodePayload(env)
	if err != nil {
		return nil, "", err
	}
	return e, env.Origin, nil
}

func decodePayload(env envelope) (event.Event, error) {
	switch env.Type {
	case "Submitted":
		var e event.Submitted
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, err
		}
		return &e, nil
	case "Started":
		var e event.Started
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, err
		}
		return &e, nil
	case "Suspended":
		var e event.Suspended
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, err
		}
		return &e, nil
	case "Continued":
		var e event.Continued
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, err
		}
		return &e, nil
	case "Threw":
		var raw struct {
			ID   string
			Err  string
			Kind string
		}
		if err := json.Unmarshal(env.Payload, &raw); err != nil {
			return nil, err
		}
		return event.NewThrew(raw.ID, decodeErr(raw.Kind, raw.Err)), nil
	case "Resumed":
		var e event.Resumed
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, err
		}
		return &e, nil
	case "Completed":
		var raw struct {
			ID     string
			Result resultPayload
		}
		if err := json.Unmarshal(env.Payload, &raw); err != nil {
			return nil, err
		}
		var res result.Result[any]
		if raw.Result.Ok {
			res = result.Ok[any](raw.Result.Value)
		} else {
			res = result.Err[any](decodeErr(raw.Result.Kind, raw.Result.Error))
		}
		return event.NewCompleted(raw.ID, res), nil
	default:
		return nil, fmt.Errorf("stream: unknown event type %q", env.Type)
	}
}
