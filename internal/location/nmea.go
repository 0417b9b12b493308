package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

const (
	knotsToMps = 0.514444
	// rough user equivalent range error for a consumer GPS, meters per HDOP unit
	uereMeters = 5.0
)

// NMEAProvider reads NMEA 0183 sentences from a GPS receiver. Every valid
// RMC sentence becomes one Fix; GGA sentences only refresh the accuracy
// estimate attached to the next fix.
type NMEAProvider struct {
	dispatcher
	r      io.Reader
	closer io.Closer
	logger *zap.Logger

	hdop float64
}

// NewNMEAProvider wraps any sentence stream (serial port, file, pipe).
func NewNMEAProvider(r io.Reader, logger *zap.Logger) *NMEAProvider {
	p := &NMEAProvider{r: r, logger: logger}
	if c, ok := r.(io.Closer); ok {
		p.closer = c
	}
	return p
}

// OpenSerial opens a serial GPS receiver.
func OpenSerial(portName string, baud uint, logger *zap.Logger) (*NMEAProvider, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("open gps %s: %w", portName, ErrPermissionDenied)
		}
		return nil, fmt.Errorf("open gps %s: %w", portName, err)
	}
	logger.Info("gps serial port opened", zap.String("port", portName), zap.Uint("baud", baud))
	return NewNMEAProvider(port, logger), nil
}

// Run reads sentences until the stream ends or ctx is cancelled. Reaching
// the end of the stream is reported to watchers as ErrPositionUnavailable.
func (p *NMEAProvider) Run(ctx context.Context) error {
	if p.closer != nil {
		stop := context.AfterFunc(ctx, func() { _ = p.closer.Close() })
		defer stop()
	}

	reader := bufio.NewReader(p.r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			p.handleLine(line)
		}
		if err != nil {
			if ctx.Err() != nil {
				p.fail(ErrPositionUnavailable, true)
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				p.fail(ErrPositionUnavailable, true)
				return nil
			}
			p.logger.Warn("gps read error", zap.Error(err))
			p.fail(fmt.Errorf("%w: %v", ErrPositionUnavailable, err), true)
			return err
		}
	}
}

func (p *NMEAProvider) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		// partial sentences are common right after the port opens
		p.logger.Debug("nmea parse error", zap.Error(err), zap.String("line", line))
		return
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality != nmea.Invalid {
			p.hdop = m.HDOP
		}
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			return
		}
		p.deliver(Fix{
			Point:    orb.Point{m.Longitude, m.Latitude},
			Accuracy: p.hdop * uereMeters,
			Speed:    m.Speed * knotsToMps,
			Course:   m.Course,
			Time:     rmcTime(m),
		})
	}
}

func rmcTime(m nmea.RMC) time.Time {
	if !m.Date.Valid || !m.Time.Valid {
		return time.Now().UTC()
	}
	return time.Date(2000+m.Date.YY, time.Month(m.Date.MM), m.Date.DD,
		m.Time.Hour, m.Time.Minute, m.Time.Second, m.Time.Millisecond*int(time.Millisecond), time.UTC)
}
