//go:build linux

package tach

import (
	"fmt"
	"io"

	"codeberg.org/mutker/iceman/internal/errors"
	"github.com/warthog618/go-gpiocdev"
)

const consumer = "iceman-tach"

// Watch requests the tachometer line as a pulled-up input reporting both
// edges and forwards every kernel edge event to handler. Events are delivered
// in order on a single goroutine owned by gpiocdev. The line is released by
// closing the returned io.Closer.
func Watch(chip string, pin int, handler func(Level)) (io.Closer, error) {
	errFactory := errors.New()

	if chip == "" {
		name := fmt.Sprintf("GPIO%d", pin)
		c, offset, err := gpiocdev.FindLine(name)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrTachInit, err)
		}
		chip, pin = c, offset
	}

	line, err := gpiocdev.RequestLine(chip, pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithConsumer(consumer),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			handler(levelOf(evt.Type))
		}),
	)
	if err != nil {
		return nil, errFactory.WithData(errors.ErrTachInit, fmt.Sprintf("%s:%d: %v", chip, pin, err))
	}

	return line, nil
}

func levelOf(t gpiocdev.LineEventType) Level {
	if t == gpiocdev.LineEventRisingEdge {
		return High
	}

	return Low
}
