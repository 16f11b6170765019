package dialogue

import "vpn-assistant/internal/domain"

// Event is an input to the enrollment dialogue.
type Event interface {
	event()
}

type StartCommand struct{}

type CancelCommand struct{}

type HelpCommand struct{}

// TextInput is any free text that is not a command.
type TextInput struct {
	Text string
}

// DeviceCountSelected comes from a device_count_<n> button.
type DeviceCountSelected struct {
	Count int
}

// PlatformSelected comes from a platform button or a typed platform name.
type PlatformSelected struct {
	Platform string
}

// ProvisionSucceeded reports that the client for the current device was
// created and its link delivered.
type ProvisionSucceeded struct {
	Platform string
	Info     domain.SubscriptionInfo
}

// ProvisionFailed reports the stage a provisioning step failed in.
type ProvisionFailed struct {
	Platform string
	Stage    string
}

func (StartCommand) event()        {}
func (CancelCommand) event()       {}
func (HelpCommand) event()         {}
func (TextInput) event()           {}
func (DeviceCountSelected) event() {}
func (PlatformSelected) event()    {}
func (ProvisionSucceeded) event()  {}
func (ProvisionFailed) event()     {}

// Effect is an instruction produced by a transition. Effects are executed by
// the caller in order.
type Effect interface {
	effect()
}

type PromptDeviceCount struct{}

// PromptPlatform asks for the platform of device Device out of Total.
type PromptPlatform struct {
	Device int
	Total  int
}

type OverLimit struct {
	Max int
}

type InvalidCount struct {
	Input string
}

type InvalidPlatform struct {
	Input string
}

// Guidance points the user at /help after unrecognised input.
type Guidance struct{}

// Stale is emitted for button presses that belong to a dialogue step the chat
// is no longer in.
type Stale struct{}

type Help struct{}

type Cancelled struct{}

// Provision asks the caller to create a client for the current device and
// feed back ProvisionSucceeded or ProvisionFailed.
type Provision struct {
	Platform string
	Device   int
	Total    int
}

type Completed struct {
	Total int
}

type Failed struct {
	Stage string
}

func (PromptDeviceCount) effect() {}
func (PromptPlatform) effect()    {}
func (OverLimit) effect()         {}
func (InvalidCount) effect()      {}
func (InvalidPlatform) effect()   {}
func (Guidance) effect()          {}
func (Stale) effect()             {}
func (Help) effect()              {}
func (Cancelled) effect()         {}
func (Provision) effect()         {}
func (Completed) effect()         {}
func (Failed) effect()            {}
