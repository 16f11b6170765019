// Package dialogue implements the device enrollment conversation as a pure
// state transition function. It performs no I/O: provisioning and messaging
// are requested through effects and their outcome is fed back as events.
package dialogue

import (
	"strconv"
	"strings"

	"vpn-assistant/internal/domain"
)

// Transition computes the next state and the effects to execute for an event.
// A nil state is treated as StateStart.
func Transition(state domain.SessionState, ev Event) (domain.SessionState, []Effect) {
	if state == nil {
		state = domain.StateStart{}
	}

	switch e := ev.(type) {
	case StartCommand:
		return domain.StateReceiveDeviceCount{}, []Effect{PromptDeviceCount{}}

	case CancelCommand:
		return domain.StateStart{}, []Effect{Cancelled{}}

	case HelpCommand:
		return state, []Effect{Help{}}

	case ProvisionFailed:
		return domain.StateStart{}, []Effect{Failed{Stage: e.Stage}}
	}

	switch s := state.(type) {
	case domain.StateReceiveDeviceCount:
		return onDeviceCount(s, ev)
	case domain.StateReceiveDeviceInfo:
		return onDeviceInfo(s, ev)
	default:
		return onIdle(state, ev)
	}
}

func onIdle(state domain.SessionState, ev Event) (domain.SessionState, []Effect) {
	switch ev.(type) {
	case DeviceCountSelected, PlatformSelected, ProvisionSucceeded:
		return state, []Effect{Stale{}}
	default:
		return state, []Effect{Guidance{}}
	}
}

func onDeviceCount(state domain.StateReceiveDeviceCount, ev Event) (domain.SessionState, []Effect) {
	switch e := ev.(type) {
	case TextInput:
		return acceptCount(state, strings.TrimSpace(e.Text))
	case DeviceCountSelected:
		return acceptCount(state, strconv.Itoa(e.Count))
	case PlatformSelected, ProvisionSucceeded:
		return state, []Effect{Stale{}}
	default:
		return state, []Effect{Guidance{}}
	}
}

func acceptCount(state domain.StateReceiveDeviceCount, input string) (domain.SessionState, []Effect) {
	n, err := strconv.Atoi(input)
	switch {
	case err != nil || n <= 0:
		return state, []Effect{InvalidCount{Input: input}}
	case n > domain.MaxDevices:
		return state, []Effect{OverLimit{Max: domain.MaxDevices}}
	}

	next := domain.StateReceiveDeviceInfo{Total: n, Current: 1, Platforms: []string{}}
	return next, []Effect{PromptPlatform{Device: 1, Total: n}}
}

func onDeviceInfo(state domain.StateReceiveDeviceInfo, ev Event) (domain.SessionState, []Effect) {
	switch e := ev.(type) {
	case PlatformSelected:
		platform, ok := domain.CanonicalPlatform(e.Platform)
		if !ok {
			return state, []Effect{
				InvalidPlatform{Input: e.Platform},
				PromptPlatform{Device: state.Current, Total: state.Total},
			}
		}
		return state, []Effect{Provision{Platform: platform, Device: state.Current, Total: state.Total}}

	case TextInput:
		// Typed platform names are accepted like button presses.
		if _, ok := domain.CanonicalPlatform(e.Text); ok {
			return onDeviceInfo(state, PlatformSelected{Platform: e.Text})
		}
		return state, []Effect{Guidance{}}

	case ProvisionSucceeded:
		platforms := make([]string, len(state.Platforms), len(state.Platforms)+1)
		copy(platforms, state.Platforms)
		platforms = append(platforms, e.Platform)

		if state.Current >= state.Total {
			return domain.StateStart{}, []Effect{Completed{Total: state.Total}}
		}

		next := domain.StateReceiveDeviceInfo{
			Total:     state.Total,
			Current:   state.Current + 1,
			Platforms: platforms,
		}
		return next, []Effect{PromptPlatform{Device: next.Current, Total: next.Total}}

	case DeviceCountSelected:
		return state, []Effect{Stale{}}

	default:
		return state, []Effect{Guidance{}}
	}
}
