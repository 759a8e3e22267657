package ipc

import (
	"context"
	"os"
)

// Activity is the rich presence payload accepted by SET_ACTIVITY.
type Activity struct {
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	Type       *int        `json:"type,omitempty"`
	URL        string      `json:"url,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
	Party      *Party      `json:"party,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Buttons    []Button    `json:"buttons,omitempty"`
}

type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

type Party struct {
	ID   string `json:"id,omitempty"`
	Size [2]int `json:"size,omitempty"`
}

type Timestamps struct {
	Start *uint64 `json:"start,omitempty"`
	End   *uint64 `json:"end,omitempty"`
}

type Button struct {
	Label string `json:"label,omitempty"`
	URL   string `json:"url,omitempty"`
}

type activityArgs struct {
	Pid      int       `json:"pid"`
	Activity *Activity `json:"activity"`
}

// SetActivity replaces the rich presence of this process. A nil activity
// clears it.
func (t *Transport) SetActivity(ctx context.Context, a *Activity) error {
	_, err := t.Request(ctx, "SET_ACTIVITY", activityArgs{Pid: os.Getpid(), Activity: a}, "")
	return err
}

// Subscribe asks the client to start sending evt as DISPATCH frames.
func (t *Transport) Subscribe(ctx context.Context, evt string, args any) error {
	if args == nil {
		args = struct{}{}
	}
	_, err := t.Request(ctx, "SUBSCRIBE", args, evt)
	return err
}
