// Package network implements the network controller: interactive
// configuration of host network devices plus the reverse-direction
// NetEventAPI subscription feed, grounded on subiquity's
// server/controllers/network.py and the NetEventAPI tree in
// common/api/definition.py.
package network

import (
	"context"
	"net/http"
	"time"

	"github.com/gravitational/trace"

	"github.com/cuemby/subiquityd/internal/api"
	"github.com/cuemby/subiquityd/internal/async"
	subctx "github.com/cuemby/subiquityd/internal/context"
	"github.com/cuemby/subiquityd/internal/controller"
	"github.com/cuemby/subiquityd/internal/eventbus"
	"github.com/cuemby/subiquityd/internal/model"
)

// Controller implements controller.Controller for the network section.
type Controller struct {
	controller.Base

	app           controller.App
	subscriptions *eventbus.SubscriptionRegistry
	apply         async.SingleFlight
}

// New constructs an unbound network Controller. Call SetupAutoinstall
// once with the owning App before binding it into the router.
func New() *Controller {
	c := &Controller{subscriptions: eventbus.NewSubscriptionRegistry()}
	c.Base.ControllerName = "network"
	return c
}

// SetupAutoinstall implements controller.Controller.
func (c *Controller) SetupAutoinstall(app controller.App) error {
	c.app = app
	c.Base.Init(app, interactiveSectionsOf(app))
	return c.Base.LoadAutoinstall(func(data interface{}) error {
		return c.applyAutoinstall(data)
	})
}

func interactiveSectionsOf(app controller.App) map[string]bool {
	raw, _ := app.AutoinstallConfig()["interactive-sections"].([]interface{})
	out := make(map[string]bool, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out[s] = true
		}
	}
	return out
}

func (c *Controller) applyAutoinstall(data interface{}) error {
	spec, ok := data.(map[string]interface{})
	if !ok {
		return trace.BadParameter("network autoinstall data must be a mapping")
	}
	devices, _ := spec["ethernets"].(map[string]interface{})
	net := c.app.Model().Network
	for name, raw := range devices {
		devSpec, _ := raw.(map[string]interface{})
		dev := model.NetworkDevice{Name: name}
		if dhcp4, ok := devSpec["dhcp4"].(bool); ok {
			dev.DHCP4 = dhcp4
		}
		net.Devices = append(net.Devices, dev)
	}
	return nil
}

// InfoGET implements "network.info GET": the current device list.
func (c *Controller) InfoGET(ctx context.Context) ([]model.NetworkDevice, error) {
	return c.app.Model().Network.Devices, nil
}

// SetStaticConfigPOST implements "network.set_static_config POST".
func (c *Controller) SetStaticConfigPOST(ctx context.Context, devName string, addresses []string) error {
	net := c.app.Model().Network
	for i := range net.Devices {
		if net.Devices[i].Name == devName {
			net.Devices[i].Addresses = addresses
			net.Devices[i].DHCP4 = false
			return nil
		}
	}
	return trace.NotFound("no such device %q", devName)
}

// EnableDHCPPOST implements "network.enable_dhcp POST".
func (c *Controller) EnableDHCPPOST(ctx context.Context, devName string, version int) error {
	net := c.app.Model().Network
	for i := range net.Devices {
		if net.Devices[i].Name != devName {
			continue
		}
		if version == 4 {
			net.Devices[i].DHCP4 = true
		} else {
			net.Devices[i].DHCP6 = true
		}
		return nil
	}
	return trace.NotFound("no such device %q", devName)
}

// DisablePOST implements "network.disable POST" -- used by a non-interactive
// autoinstall run that explicitly wants no network.
func (c *Controller) DisablePOST(ctx context.Context) error {
	c.app.Model().Network.Devices = nil
	return nil
}

// DeletePOST implements "network.delete POST".
func (c *Controller) DeletePOST(ctx context.Context, devName string) error {
	net := c.app.Model().Network
	out := net.Devices[:0]
	for _, d := range net.Devices {
		if d.Name != devName {
			out = append(out, d)
		}
	}
	net.Devices = out
	return nil
}

// ApplyPOST implements "network.apply POST": (re)applies the currently
// configured devices to the running system. A POST received while a
// previous apply is still in flight cancels that one first, so the
// subscriber feed only ever sees one apply's starting/stopping pair at a
// time, matching subiquity's own apply_config restart-on-reconfigure
// behavior. It marks the controller configured, mirroring network.py's
// own POST handler, which is the only thing that ever unblocks an
// interactive session's install.Task.WaitInstall() for this controller.
func (c *Controller) ApplyPOST(ctx context.Context) error {
	c.Configured()
	c.apply.Start(ctx, c.runApply)
	return nil
}

func (c *Controller) runApply(ctx context.Context) error {
	c.subscriptions.Broadcast(ctx, func(ctx context.Context, sink eventbus.NetEventSink) error {
		return sink.ApplyStarting(ctx)
	})

	err := c.doApply(ctx)

	if err != nil {
		c.subscriptions.Broadcast(ctx, func(ctx context.Context, sink eventbus.NetEventSink) error {
			return sink.ApplyError(ctx, trace.UserMessage(err))
		})
		return err
	}

	c.subscriptions.Broadcast(ctx, func(ctx context.Context, sink eventbus.NetEventSink) error {
		return sink.ApplyStopping(ctx)
	})
	return nil
}

// doApply is the point where a real implementation would write netplan
// YAML and run "netplan apply"; this module treats that step as an opaque
// collaborator (curtin and netplan binaries are not available in the
// dry-run harness this package is tested under) and simulates the delay
// instead.
func (c *Controller) doApply(ctx context.Context) error {
	select {
	case <-time.After(50 * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubscriptionPUT implements "network.subscription PUT": registers a
// NetEventAPI client reachable at socketPath. The sink is always a remote
// one constructed from socketPath itself -- the wire request carries
// nothing else a sink could be built from -- so the parameter list holds
// only what a caller could actually supply.
func (c *Controller) SubscriptionPUT(ctx context.Context, socketPath string) error {
	c.subscriptions.Subscribe(socketPath, eventbus.NewRemoteNetEventSink(socketPath))
	return nil
}

// SubscriptionDELETE implements "network.subscription DELETE".
func (c *Controller) SubscriptionDELETE(ctx context.Context, socketPath string) error {
	c.subscriptions.Unsubscribe(socketPath)
	return nil
}

// NotifyLinkChange fans a link update out to every subscriber, called by
// the server's own netlink watcher goroutine.
func (c *Controller) NotifyLinkChange(ctx context.Context, update eventbus.LinkUpdate) {
	c.subscriptions.Broadcast(ctx, func(ctx context.Context, sink eventbus.NetEventSink) error {
		return sink.UpdateLink(ctx, update)
	})
}

// Routes builds the /network endpoint tree, wiring each leaf's Handler
// directly to the concrete method above: a method this function
// references that c does not have fails to compile, so a missing
// implementation can never reach Bind, let alone a live request.
func Routes(c *Controller) *api.Group {
	return api.NewGroup("network",
		api.Leaf("info", http.MethodGet, "network_info_GET", false,
			func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
				return c.InfoGET(context.Background())
			}),
		api.Leaf("enable_dhcp", http.MethodPost, "network_enable_dhcp_POST", false,
			func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
				dev, _ := query["dev"].(string)
				version := 4
				if v, ok := query["version"].(float64); ok {
					version = int(v)
				}
				return nil, c.EnableDHCPPOST(context.Background(), dev, version)
			}),
		api.Leaf("apply", http.MethodPost, "network_apply_POST", false,
			func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
				return nil, c.ApplyPOST(context.Background())
			}),
		api.Leaf("disable", http.MethodPost, "network_disable_POST", false,
			func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
				return nil, c.DisablePOST(context.Background())
			}),
		api.Leaf("delete", http.MethodPost, "network_delete_POST", false,
			func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
				dev, _ := query["dev"].(string)
				return nil, c.DeletePOST(context.Background(), dev)
			}),
		api.NewGroup("subscription").
			Method(http.MethodPut, "network_subscription_PUT", true,
				func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
					socketPath, _ := payload.(string)
					return nil, c.SubscriptionPUT(context.Background(), socketPath)
				}).
			Method(http.MethodDelete, "network_subscription_DELETE", false,
				func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error) {
					socketPath, _ := query["socket_path"].(string)
					return nil, c.SubscriptionDELETE(context.Background(), socketPath)
				}),
	)
}
