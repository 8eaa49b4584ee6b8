package distribution

import "context"

// Sender delivers payloads of one distributor to a destination. Send may
// block; it should return when ctx is done.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
	Distributor() *Distributor
}

// SenderFactory creates the senders of a new distributor.
type SenderFactory interface {
	Create(d *Distributor) ([]Sender, error)
}

// SenderFactoryFunc adapts a function to SenderFactory.
type SenderFactoryFunc func(d *Distributor) ([]Sender, error)

// Create calls f.
func (f SenderFactoryFunc) Create(d *Distributor) ([]Sender, error) {
	return f(d)
}

// Fanout joins several factories; each distributor gets all their senders.
func Fanout(factories ...SenderFactory) SenderFactory {
	return SenderFactoryFunc(func(d *Distributor) ([]Sender, error) {
		var senders []Sender
		for _, f := range factories {
			ss, err := f.Create(d)
			if err != nil {
				return nil, err
			}
			senders = append(senders, ss...)
		}
		return senders, nil
	})
}
