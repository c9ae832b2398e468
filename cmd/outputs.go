// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"

	"tempo/internal/config"
	applog "tempo/internal/log"
	"tempo/internal/transport"
	"tempo/internal/transport/udp"
)

// Outputs are the configured snapshot consumers.
type Outputs struct {
	Publisher    *transport.Publisher
	WebSocket    *transport.WebSocketTransport
	UDPSender    *udp.UDPSender
	UDPPublisher *udp.UDPPublisher
}

// NewOutputs builds the transports enabled in cfg. Nothing is started.
func NewOutputs(cfg config.TransportConfig, source transport.SnapshotSource) (*Outputs, error) {
	out := &Outputs{}
	var transports []transport.Transport

	if cfg.LogEnabled {
		transports = append(transports, transport.NewLoggingTransport())
	}
	if cfg.WSEnabled {
		ws, err := transport.NewWebSocketTransport(cfg.WSAddress)
		if err != nil {
			return nil, err
		}
		out.WebSocket = ws
		transports = append(transports, ws)
	}
	if len(transports) > 0 {
		out.Publisher = transport.NewPublisher(source, cfg.PublishInterval, transports...)
	}

	if cfg.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.UDPTargetAddress)
		if err != nil {
			return nil, errors.Join(err, out.Close())
		}
		out.UDPSender = sender

		publisher, err := udp.NewUDPPublisher(cfg.UDPSendInterval, sender, source)
		if err != nil {
			return nil, errors.Join(err, out.Close())
		}
		out.UDPPublisher = publisher
	}

	return out, nil
}

// Start starts every publisher.
func (o *Outputs) Start() {
	if o.Publisher != nil {
		o.Publisher.Start()
	}
	if o.UDPPublisher != nil {
		o.UDPPublisher.Start()
	}
}

// Close stops the publishers and closes their transports.
func (o *Outputs) Close() error {
	var errs []error
	if o.UDPPublisher != nil {
		errs = append(errs, o.UDPPublisher.Close())
	}
	if o.UDPSender != nil {
		errs = append(errs, o.UDPSender.Close())
	}
	if o.Publisher != nil {
		errs = append(errs, o.Publisher.Close())
	} else if o.WebSocket != nil {
		errs = append(errs, o.WebSocket.Close())
	}
	if err := errors.Join(errs...); err != nil {
		applog.Warnf("Outputs: Close: %v", err)
		return err
	}
	return nil
}
