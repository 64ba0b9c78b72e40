package orchestrator

import (
	"context"
	"time"

	mserror "github.com/msto63/mSYS/foundation/core/error"
	"github.com/msto63/mSYS/internal/sysmgr/bus"
	"github.com/msto63/mSYS/internal/sysmgr/msg"
)

// Client posts commands into the system manager's inbox on behalf of a
// named bus participant.
type Client struct {
	bus     *bus.Bus
	from    string
	manager string
}

// NewClient creates a client sending as from to manager
func NewClient(b *bus.Bus, from, manager string) *Client {
	return &Client{bus: b, from: from, manager: manager}
}

// CloseSystem asks for a regular shutdown
func (c *Client) CloseSystem(reason msg.CloseReason) error {
	return c.bus.Send(c.from, c.manager, msg.CloseSystem{Reason: reason})
}

// Reboot asks to close the system and reboot
func (c *Client) Reboot() error {
	return c.bus.Send(c.from, c.manager, msg.RebootSystem{})
}

// RebootToUpdate asks to close the system and reboot into the updater
func (c *Client) RebootToUpdate(reason msg.UpdateReason) error {
	return c.bus.Send(c.from, c.manager, msg.RebootToUpdate{Reason: reason})
}

// UserPowerDown forwards the user's power-off request
func (c *Client) UserPowerDown() error {
	return c.bus.Send(c.from, c.manager, msg.UserPowerDownRequest{})
}

// ReadyToClose acknowledges a close notice for name
func (c *Client) ReadyToClose(name string) error {
	return c.bus.Send(c.from, c.manager, msg.ReadyToClose{Name: name})
}

// Update tears down everything outside the update whitelist and returns
// once the round completed
func (c *Client) Update(ctx context.Context, timeout time.Duration) error {
	return c.await(ctx, msg.UpdateSystem{}, timeout)
}

// Restore tears down everything outside the restore whitelist and returns
// once the round completed
func (c *Client) Restore(ctx context.Context, timeout time.Duration) error {
	return c.await(ctx, msg.RestoreSystem{}, timeout)
}

func (c *Client) await(ctx context.Context, m msg.Message, timeout time.Duration) error {
	res := c.bus.SendSync(ctx, c.from, c.manager, m, timeout)
	if !res.Ok() {
		return res.Err()
	}
	if !res.Succeeded() {
		return mserror.New("request rejected").
			WithCode(mserror.CodeInvalidState).
			WithDetail("request", messageName(m))
	}
	return nil
}
