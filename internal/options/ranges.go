package options

import "fmt"

// Resource identifies one of the ID spaces partitioned between clients.
type Resource int

// Partitioned resources.
const (
	AudioBuses Resource = iota
	Buffers
	ControlBuses
	SyncIDs
)

func (r Resource) String() string {
	switch r {
	case AudioBuses:
		return "audio_buses"
	case Buffers:
		return "buffers"
	case ControlBuses:
		return "control_buses"
	case SyncIDs:
		return "sync_ids"
	default:
		return fmt.Sprintf("resource(%d)", int(r))
	}
}

// Range returns the half-open ID range [min, max) reserved for the client
// with the given index. Capacity is split evenly between MaximumLogins
// clients, so ranges of distinct clients never overlap.
func (o Options) Range(kind Resource, client int) (minID, maxID int, err error) {
	if client < 0 || client >= o.MaximumLogins {
		return 0, 0, &ConfigurationError{Errors: []string{
			fmt.Sprintf("client index %d outside [0, %d)", client, o.MaximumLogins),
		}}
	}

	switch kind {
	case AudioBuses:
		per := o.PrivateAudioBusChannelCount() / o.MaximumLogins
		first := o.FirstPrivateBusID()
		return first + client*per, first + (client+1)*per, nil
	case Buffers:
		per := o.BufferCount / o.MaximumLogins
		return client * per, (client + 1) * per, nil
	case ControlBuses:
		per := o.ControlBusChannelCount / o.MaximumLogins
		return client * per, (client + 1) * per, nil
	case SyncIDs:
		return client << syncIDBits, (client + 1) << syncIDBits, nil
	default:
		return 0, 0, fmt.Errorf("unknown resource %v", kind)
	}
}

// Capacity returns the upper bound of the ID space of a resource, used to
// check that every client range fits.
func (o Options) Capacity(kind Resource) int {
	switch kind {
	case AudioBuses:
		return o.AudioBusChannelCount
	case Buffers:
		return o.BufferCount
	case ControlBuses:
		return o.ControlBusChannelCount
	case SyncIDs:
		return o.MaximumLogins << syncIDBits
	default:
		return 0
	}
}
