// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// BundleBuilder assembles a Bundle by method chaining. Each method returns
// an updated copy; the receiver itself is never mutated, so intermediate
// values remain safe to branch from.
//
//   bndl, err := Builder().
//     CRC(CRC32).
//     Source("dtn://src/").
//     Destination("dtn://dest/").
//     CreationTimestampNow().
//     Lifetime("30m").
//     HopCountBlock(64).
//     PayloadBlock([]byte("hello world!")).
//     Build()
type BundleBuilder struct {
	err error

	primary          PrimaryBlock
	canonicals       []CanonicalBlock
	canonicalCounter uint64
	crcType          CRCType
}

// Builder creates a new BundleBuilder.
func Builder() BundleBuilder {
	return BundleBuilder{
		primary:          PrimaryBlock{Version: dtnVersion, Lifetime: DefaultLifetime},
		canonicalCounter: 2,
		crcType:          CRCNo,
	}
}

// Error returns the first error this builder encountered, or nil.
func (bldr BundleBuilder) Error() error {
	return bldr.err
}

// CRC sets the bundle's CRC type.
func (bldr BundleBuilder) CRC(crcType CRCType) BundleBuilder {
	if bldr.err == nil {
		bldr.crcType = crcType
	}
	return bldr
}

// Build finalizes the bundle. Source and Destination must have been set;
// ReportTo defaults to Source. If no CRC type was requested, CRC32 is
// used for both the primary and every canonical block.
func (bldr BundleBuilder) Build() (Bundle, error) {
	if bldr.err != nil {
		return Bundle{}, bldr.err
	}

	primary := bldr.primary
	if primary.ReportTo == (EndpointID{}) {
		primary.ReportTo = primary.SourceNode
	}
	if primary.SourceNode == (EndpointID{}) || primary.Destination == (EndpointID{}) {
		return Bundle{}, fmt.Errorf("both Source and Destination must be set")
	}

	crcType := bldr.crcType
	if crcType == CRCNo {
		crcType = CRC32
	}
	primary.SetCRCType(crcType)

	canonicals := make([]CanonicalBlock, len(bldr.canonicals))
	copy(canonicals, bldr.canonicals)

	bndl, err := NewBundle(primary, canonicals)
	if err != nil {
		return Bundle{}, err
	}
	bndl.SetCRCType(crcType)

	return bndl, nil
}

// mustBuild is like Build, but panics on an error. Only intended for tests.
func (bldr BundleBuilder) mustBuild() Bundle {
	b, err := bldr.Build()
	if err != nil {
		panic(err)
	}
	return b
}

// Helper functions

// bldrParseEndpoint returns an EndpointID for a given EndpointID or a string
// representing an endpoint identifier as an URI.
func bldrParseEndpoint(eid interface{}) (EndpointID, error) {
	switch eid := eid.(type) {
	case EndpointID:
		return eid, nil
	case string:
		return NewEndpointID(eid)
	default:
		return EndpointID{}, fmt.Errorf("%T is neither an EndpointID nor a string", eid)
	}
}

// bldrParseLifetime returns a duration, in milliseconds, for an uint64, an
// int, a float64, a duration string or a time.Duration.
func bldrParseLifetime(duration interface{}) (ms uint64, err error) {
	switch duration := duration.(type) {
	case uint64:
		ms = duration
	case int:
		if duration < 0 {
			err = fmt.Errorf("lifetime's duration %d <= 0", duration)
		} else {
			ms = uint64(duration)
		}
	case float64:
		if duration < 0 {
			err = fmt.Errorf("lifetime's duration %f <= 0", duration)
		} else {
			ms = uint64(duration)
		}
	case string:
		dur, durErr := time.ParseDuration(duration)
		if durErr != nil {
			err = durErr
		} else if dur <= 0 {
			err = fmt.Errorf("lifetime's duration %d <= 0", dur)
		} else {
			ms = uint64(dur.Milliseconds())
		}
	case time.Duration:
		ms = uint64(duration.Milliseconds())
	default:
		err = fmt.Errorf("%T is an unsupported type to parse a Duration from", duration)
	}
	return
}

// PrimaryBlock related methods

// Destination sets the bundle's destination.
func (bldr BundleBuilder) Destination(eid interface{}) BundleBuilder {
	if bldr.err != nil {
		return bldr
	}
	if e, err := bldrParseEndpoint(eid); err != nil {
		bldr.err = err
	} else {
		bldr.primary.Destination = e
	}
	return bldr
}

// Source sets the bundle's source.
func (bldr BundleBuilder) Source(eid interface{}) BundleBuilder {
	if bldr.err != nil {
		return bldr
	}
	if e, err := bldrParseEndpoint(eid); err != nil {
		bldr.err = err
	} else {
		bldr.primary.SourceNode = e
	}
	return bldr
}

// ReportTo sets the bundle's report-to address.
func (bldr BundleBuilder) ReportTo(eid interface{}) BundleBuilder {
	if bldr.err != nil {
		return bldr
	}
	if e, err := bldrParseEndpoint(eid); err != nil {
		bldr.err = err
	} else {
		bldr.primary.ReportTo = e
	}
	return bldr
}

func (bldr BundleBuilder) creationTimestamp(t DtnTime) BundleBuilder {
	if bldr.err == nil {
		bldr.primary.CreationTimestamp = NewCreationTimestamp(t, 0)
	}
	return bldr
}

// CreationTimestampEpoch sets the bundle's creation timestamp to the epoch.
func (bldr BundleBuilder) CreationTimestampEpoch() BundleBuilder {
	return bldr.creationTimestamp(DtnTimeEpoch)
}

// CreationTimestampNow sets the bundle's creation timestamp to the current
// wall-clock time.
func (bldr BundleBuilder) CreationTimestampNow() BundleBuilder {
	return bldr.creationTimestamp(DtnTimeNow())
}

// CreationTimestampTime sets the bundle's creation timestamp to t.
func (bldr BundleBuilder) CreationTimestampTime(t time.Time) BundleBuilder {
	return bldr.creationTimestamp(DtnTimeFromTime(t))
}

// Lifetime sets the bundle's lifetime. Accepted value types are an
// uint64/int/float64 of milliseconds, a duration string (time.ParseDuration) or a
// time.Duration.
//
//   Lifetime(1000)             // 1000ms
//   Lifetime("1000ms")         // 1000ms
//   Lifetime("10m")            // 10min
//   Lifetime(10 * time.Minute) // 10min
func (bldr BundleBuilder) Lifetime(duration interface{}) BundleBuilder {
	if bldr.err != nil {
		return bldr
	}
	if ms, msErr := bldrParseLifetime(duration); msErr != nil {
		bldr.err = msErr
	} else {
		bldr.primary.Lifetime = ms
	}
	return bldr
}

// BundleCtrlFlags sets the bundle processing control flags.
func (bldr BundleBuilder) BundleCtrlFlags(bcf BundleControlFlags) BundleBuilder {
	if bldr.err == nil {
		bldr.primary.BundleControlFlags = bcf
	}
	return bldr
}

// CanonicalBlock related methods

// addCanonical appends a canonical block carrying value, assigning block
// number 1 for a Payload and the next free number starting at 2 otherwise.
// A fresh backing array is used so earlier copies sharing bldr.canonicals
// are never aliased into by this append.
func (bldr BundleBuilder) addCanonical(value CanonicalData, flags BlockControlFlags) BundleBuilder {
	if bldr.err != nil {
		return bldr
	}

	var blockNumber uint64
	if value.IsPayload() {
		blockNumber = 1
	} else {
		blockNumber = bldr.canonicalCounter
		bldr.canonicalCounter++
	}

	existing := bldr.canonicals
	bldr.canonicals = append(existing[:len(existing):len(existing)], NewCanonicalBlock(blockNumber, flags, value))
	return bldr
}

// canonicalFlags extracts an optional trailing BlockControlFlags argument,
// defaulting to zero.
func canonicalFlags(args []interface{}) (BlockControlFlags, error) {
	if len(args) == 0 {
		return 0, nil
	}
	flags, ok := args[0].(BlockControlFlags)
	if !ok {
		return 0, fmt.Errorf("expected BlockControlFlags, got %T", args[0])
	}
	return flags, nil
}

// BundleAgeBlock adds a Bundle Age Block. Parameters are:
//
//   Age[, BlockControlFlags]
//
// Age is the age in milliseconds, a duration string or a time.Duration.
func (bldr BundleBuilder) BundleAgeBlock(args ...interface{}) BundleBuilder {
	if bldr.err != nil || len(args) == 0 {
		if bldr.err == nil {
			bldr.err = fmt.Errorf("BundleAgeBlock requires an age parameter")
		}
		return bldr
	}

	ms, err := bldrParseLifetime(args[0])
	if err != nil {
		bldr.err = err
		return bldr
	}

	flags, err := canonicalFlags(args[1:])
	if err != nil {
		bldr.err = err
		return bldr
	}

	return bldr.addCanonical(NewBundleAgeData(ms), flags)
}

// HopCountBlock adds a Hop Count Block. Parameters are:
//
//   Limit[, BlockControlFlags]
func (bldr BundleBuilder) HopCountBlock(args ...interface{}) BundleBuilder {
	if bldr.err != nil || len(args) == 0 {
		if bldr.err == nil {
			bldr.err = fmt.Errorf("HopCountBlock requires a limit parameter")
		}
		return bldr
	}

	limit, ok := args[0].(int)
	if !ok {
		bldr.err = fmt.Errorf("HopCountBlock received wrong parameter type")
		return bldr
	}

	flags, err := canonicalFlags(args[1:])
	if err != nil {
		bldr.err = err
		return bldr
	}

	return bldr.addCanonical(NewHopCountData(uint8(limit)), flags)
}

// PayloadBlock adds a Payload Block. Parameters are:
//
//   Data[, BlockControlFlags]
//
// Data is the application payload, written little-endian via encoding/binary
// unless it is already a []byte or string.
func (bldr BundleBuilder) PayloadBlock(args ...interface{}) BundleBuilder {
	if bldr.err != nil || len(args) == 0 {
		if bldr.err == nil {
			bldr.err = fmt.Errorf("PayloadBlock requires a data parameter")
		}
		return bldr
	}

	var data []byte
	switch v := args[0].(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		buf := new(bytes.Buffer)
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			bldr.err = err
			return bldr
		}
		data = buf.Bytes()
	}

	flags, err := canonicalFlags(args[1:])
	if err != nil {
		bldr.err = err
		return bldr
	}

	return bldr.addCanonical(NewPayloadBlockData(data), flags)
}

// PreviousNodeBlock adds a Previous Node Block. Parameters are:
//
//   PrevNode[, BlockControlFlags]
//
// PrevNode is an EndpointID or a string describing an endpoint.
func (bldr BundleBuilder) PreviousNodeBlock(args ...interface{}) BundleBuilder {
	if bldr.err != nil || len(args) == 0 {
		if bldr.err == nil {
			bldr.err = fmt.Errorf("PreviousNodeBlock requires an endpoint parameter")
		}
		return bldr
	}

	eid, err := bldrParseEndpoint(args[0])
	if err != nil {
		bldr.err = err
		return bldr
	}

	flags, err := canonicalFlags(args[1:])
	if err != nil {
		bldr.err = err
		return bldr
	}

	return bldr.addCanonical(NewPreviousNodeData(eid), flags)
}

// StatusReport attaches a bundle status report, reporting reason at
// position for orig, as this bundle's sole administrative-record payload.
// It also sets the AdministrativeRecordPayload control flag.
func (bldr BundleBuilder) StatusReport(orig Bundle, position StatusInformationPos, reason StatusReportReason) BundleBuilder {
	if bldr.err != nil {
		return bldr
	}

	sr := NewStatusReport(orig, position, reason, DtnTimeNow())

	data, err := encodeAdministrativeRecord(sr)
	if err != nil {
		bldr.err = err
		return bldr
	}

	bldr.primary.BundleControlFlags |= AdministrativeRecordPayload
	return bldr.addCanonical(NewPayloadBlockData(data), 0)
}

// BuildFromMap creates a Bundle from a map "calling" the BundleBuilder's
// methods by name. This uses no reflection, so it is safe on unchecked
// input.
//
//   args := map[string]interface{}{
//     "destination":              "dtn://dst/",
//     "source":                   "dtn://src/",
//     "creation_timestamp_now":   true,
//     "lifetime":                 "24h",
//     "payload_block":            "hello world",
//   }
//   b, err := BuildFromMap(args)
func BuildFromMap(m map[string]interface{}) (Bundle, error) {
	bldr := Builder()

	for method, args := range m {
		switch method {
		case "destination":
			bldr = bldr.Destination(args)

		case "source":
			bldr = bldr.Source(args)

		case "report_to":
			bldr = bldr.ReportTo(args)

		case "creation_timestamp_epoch":
			bldr = bldr.CreationTimestampEpoch()

		case "creation_timestamp_now":
			bldr = bldr.CreationTimestampNow()

		case "creation_timestamp_time":
			if argsT, ok := args.(time.Time); ok {
				bldr = bldr.CreationTimestampTime(argsT)
			} else {
				return Bundle{}, fmt.Errorf("creation_timestamp_time needs a time.Time, not %T", args)
			}

		case "lifetime":
			bldr = bldr.Lifetime(args)

		case "bundle_ctrl_flags":
			return Bundle{}, fmt.Errorf("bundle_ctrl_flags is not yet implemented")

		case "canonical":
			return Bundle{}, fmt.Errorf("canonical is not implemented")

		case "bundle_age_block":
			bldr = bldr.BundleAgeBlock(args)

		case "hop_count_block":
			bldr = bldr.HopCountBlock(args)

		case "payload_block":
			if sArgs, ok := args.(string); ok {
				bldr = bldr.PayloadBlock([]byte(sArgs))
			} else {
				bldr = bldr.PayloadBlock(args)
			}

		case "previous_node_block":
			bldr = bldr.PreviousNodeBlock(args)

		default:
			return Bundle{}, fmt.Errorf("method %s is either not implemented or not existing", method)
		}

		if err := bldr.Error(); err != nil {
			return Bundle{}, err
		}
	}

	return bldr.Build()
}
