// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// BundleControlFlags is an uint64 which represents the Bundle Processing
// Control Flags as specified in section 4.2.3.
type BundleControlFlags uint64

const (
	// IsFragment indicates this bundle is a fragment.
	IsFragment BundleControlFlags = 0x000001

	// AdministrativeRecordPayload indicates the payload is an administrative record.
	AdministrativeRecordPayload BundleControlFlags = 0x000002

	// MustNotFragmented forbids bundle fragmentation.
	MustNotFragmented BundleControlFlags = 0x000004

	// RequestUserApplicationAck requests an acknowledgement from the application agent.
	RequestUserApplicationAck BundleControlFlags = 0x000020

	// RequestStatusTime requests a status time in all status reports.
	RequestStatusTime BundleControlFlags = 0x000040

	// StatusRequestReception requests a bundle reception status report.
	StatusRequestReception BundleControlFlags = 0x004000

	// StatusRequestForward requests a bundle forwarding status report.
	StatusRequestForward BundleControlFlags = 0x010000

	// StatusRequestDelivery requests a bundle delivery status report.
	StatusRequestDelivery BundleControlFlags = 0x020000

	// StatusRequestDeletion requests a bundle deletion status report.
	StatusRequestDeletion BundleControlFlags = 0x040000

	// bundleControlFlagsReserved is the mask of reserved bits; any bundle
	// with one of these bits set is malformed.
	bundleControlFlagsReserved BundleControlFlags = 0xA218
)

// Has returns true if a given flag or mask of flags is set.
func (bcf BundleControlFlags) Has(flag BundleControlFlags) bool {
	return (bcf & flag) != 0
}

// CheckValid returns an aggregate of all violated invariants, or nil.
func (bcf BundleControlFlags) CheckValid() (errs error) {
	if bcf.Has(bundleControlFlagsReserved) {
		errs = multierror.Append(errs, fmt.Errorf(
			"BundleControlFlags: reserved bits are set, %b & %b != 0", bcf, bundleControlFlagsReserved))
	}

	if bcf.Has(IsFragment) && bcf.Has(MustNotFragmented) {
		errs = multierror.Append(errs, fmt.Errorf(
			"BundleControlFlags: both 'bundle is a fragment' and "+
				"'bundle must not be fragmented' flags are set"))
	}

	if bcf.Has(AdministrativeRecordPayload) &&
		(bcf.Has(StatusRequestReception) ||
			bcf.Has(StatusRequestForward) ||
			bcf.Has(StatusRequestDelivery) ||
			bcf.Has(StatusRequestDeletion)) {
		errs = multierror.Append(errs, fmt.Errorf(
			"BundleControlFlags: payload is an administrative record, but a "+
				"status report request flag is set"))
	}

	return
}

// Strings returns an array of all flags as a string representation.
func (bcf BundleControlFlags) Strings() (fields []string) {
	checks := []struct {
		field BundleControlFlags
		text  string
	}{
		{StatusRequestDeletion, "REQUESTED_DELETION_STATUS_REPORT"},
		{StatusRequestDelivery, "REQUESTED_DELIVERY_STATUS_REPORT"},
		{StatusRequestForward, "REQUESTED_FORWARD_STATUS_REPORT"},
		{StatusRequestReception, "REQUESTED_RECEPTION_STATUS_REPORT"},
		{RequestStatusTime, "REQUESTED_TIME_IN_STATUS_REPORT"},
		{RequestUserApplicationAck, "REQUESTED_APPLICATION_ACK"},
		{MustNotFragmented, "MUST_NOT_BE_FRAGMENTED"},
		{AdministrativeRecordPayload, "ADMINISTRATIVE_PAYLOAD"},
		{IsFragment, "IS_FRAGMENT"},
	}

	for _, check := range checks {
		if bcf.Has(check.field) {
			fields = append(fields, check.text)
		}
	}

	return
}

// MarshalJSON creates a JSON array of control flags.
func (bcf BundleControlFlags) MarshalJSON() ([]byte, error) {
	return json.Marshal(bcf.Strings())
}

func (bcf BundleControlFlags) String() string {
	return strings.Join(bcf.Strings(), ",")
}

// BlockControlFlags is an uint8 which represents the Block Processing
// Control Flags as specified in section 4.2.4.
type BlockControlFlags uint8

const (
	// ReplicateBlock requests this block be replicated in every fragment.
	ReplicateBlock BlockControlFlags = 0x01

	// StatusReportBlock requests a status report if this block cannot be processed.
	StatusReportBlock BlockControlFlags = 0x02

	// DeleteBundle requires the bundle to be deleted if this block cannot be processed.
	DeleteBundle BlockControlFlags = 0x04

	// RemoveBlock requires this block be removed from the bundle if it cannot be processed.
	RemoveBlock BlockControlFlags = 0x10

	// blockControlFlagsReserved is the mask of reserved bits, including the
	// 0x08 gap between DeleteBundle and RemoveBlock.
	blockControlFlagsReserved BlockControlFlags = 0xE8
)

// Has returns true if a given flag or mask of flags is set.
func (bcf BlockControlFlags) Has(flag BlockControlFlags) bool {
	return (bcf & flag) != 0
}

// CheckValid returns an error if a reserved bit is set, or nil.
func (bcf BlockControlFlags) CheckValid() error {
	if bcf.Has(blockControlFlagsReserved) {
		return fmt.Errorf("BlockControlFlags: reserved bits are set, %b & %b != 0",
			bcf, blockControlFlagsReserved)
	}

	return nil
}

func (bcf BlockControlFlags) String() string {
	var fields []string

	checks := []struct {
		field BlockControlFlags
		text  string
	}{
		{RemoveBlock, "REMOVE_BLOCK"},
		{DeleteBundle, "DELETE_BUNDLE"},
		{StatusReportBlock, "STATUS_REPORT"},
		{ReplicateBlock, "REPLICATE_BLOCK"},
	}

	for _, check := range checks {
		if bcf.Has(check.field) {
			fields = append(fields, check.text)
		}
	}

	return strings.Join(fields, ",")
}
