// Package claimcheck keeps oversized node outputs out of the events table.
// Outputs above the configured threshold are written to the blob store and
// replaced by a small pointer document; hydration on the poll path
// dereferences pointers back into the original payload.
package claimcheck

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kuro6061/nexum/common/blob"
	"github.com/kuro6061/nexum/common/logger"
)

// PointerKey marks a stored payload as a claim-check pointer.
const PointerKey = "__nexum_claim_check__"

// Offloader spills large payloads to a blob backend and hydrates them back.
type Offloader struct {
	blobs     blob.Store
	threshold int
	log       *logger.Logger
}

func New(blobs blob.Store, threshold int, log *logger.Logger) *Offloader {
	return &Offloader{blobs: blobs, threshold: threshold, log: log}
}

// Store returns outputJSON unchanged when it fits within the threshold.
// Larger payloads are written to the blob store under "<exec>-<node>" and
// a pointer document is returned in their place.
func (o *Offloader) Store(ctx context.Context, executionID, nodeID, outputJSON string) (string, error) {
	if len(outputJSON) <= o.threshold {
		return outputJSON, nil
	}

	blobID := executionID + "-" + nodeID
	path, err := o.blobs.Put(ctx, blobID, []byte(outputJSON))
	if err != nil {
		return "", fmt.Errorf("failed to write blob %s: %w", blobID, err)
	}

	pointer := map[string]any{
		PointerKey: true,
		"blob_id":  blobID,
		"size":     len(outputJSON),
		"path":     path,
	}
	data, err := json.Marshal(pointer)
	if err != nil {
		return "", fmt.Errorf("failed to encode claim-check pointer: %w", err)
	}

	o.log.Info("Payload offloaded to blob store", "blob_id", blobID, "size", len(outputJSON))
	return string(data), nil
}

// Resolve returns the original payload for a claim-check pointer and the
// stored JSON unchanged for everything else. Invalid JSON is an error.
func (o *Offloader) Resolve(ctx context.Context, storedJSON string) (string, error) {
	var val any
	if err := json.Unmarshal([]byte(storedJSON), &val); err != nil {
		return "", fmt.Errorf("failed to parse stored payload: %w", err)
	}

	obj, ok := val.(map[string]any)
	if !ok || !isPointer(obj) {
		return storedJSON, nil
	}

	blobID, _ := obj["blob_id"].(string)
	data, err := o.blobs.Get(ctx, blobID)
	if err != nil {
		return "", fmt.Errorf("failed to read blob %s: %w", blobID, err)
	}
	return string(data), nil
}

// Hydrate dereferences claim-check pointers hiding inside a dependency
// output. A string value that parses as JSON is replaced by the parsed
// document, so a stringified pointer round-trips to the original payload.
// Values that are not pointers, and pointers that cannot be resolved,
// come back unchanged.
func (o *Offloader) Hydrate(ctx context.Context, output any) any {
	switch v := output.(type) {
	case string:
		resolved, err := o.Resolve(ctx, v)
		if err != nil {
			return output
		}
		var parsed any
		if err := json.Unmarshal([]byte(resolved), &parsed); err != nil {
			return output
		}
		return parsed
	case map[string]any:
		if !isPointer(v) {
			return output
		}
		data, err := json.Marshal(v)
		if err != nil {
			return output
		}
		resolved, err := o.Resolve(ctx, string(data))
		if err != nil {
			return output
		}
		var parsed any
		if err := json.Unmarshal([]byte(resolved), &parsed); err != nil {
			return output
		}
		return parsed
	default:
		return output
	}
}

func isPointer(obj map[string]any) bool {
	flag, _ := obj[PointerKey].(bool)
	return flag
}
