package browser

import (
	"context"
	"time"

	uanodes "github.com/comsys/uanodes/modules/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
)

type readTarget struct {
	def  *NodeDef
	attr ua.AttributeID
}

// readNodeAttributes fills in node classes the browse did not report, then
// the class specific attributes of types.
func (t *UABrowse) readNodeAttributes(ctx context.Context) error {
	var targets []readTarget
	for _, def := range t.order {
		if def.NodeClass == ua.NodeClassUnspecified {
			targets = append(targets, readTarget{def, ua.AttributeIDNodeClass})
		}
	}
	if err := t.readValuesChunked(ctx, targets); err != nil {
		return err
	}

	targets = targets[:0]
	for _, def := range t.order {
		for _, attr := range typeAttrs[def.NodeClass] {
			targets = append(targets, readTarget{def, attr})
		}
	}
	return t.readValuesChunked(ctx, targets)
}

func (t *UABrowse) readValuesChunked(ctx context.Context, targets []readTarget) error {
	retryCounter := 3
	for i := 0; i < len(targets); {
		// do not overload server with too many requests
		if err := t.sleep(ctx); err != nil {
			return err
		}
		j := i + t.ReadChunkSize
		if j > len(targets) {
			j = len(targets)
		}
		nodesToRead := make([]*ua.ReadValueID, 0, j-i)
		for _, rt := range targets[i:j] {
			nodesToRead = append(nodesToRead, &ua.ReadValueID{NodeID: rt.def.NodeID, AttributeID: rt.attr})
		}

		tRequest := time.Now()
		t.NumReadReq++
		res, err := t.Client.Read(&ua.ReadRequest{
			TimestampsToReturn: ua.TimestampsToReturnNeither,
			NodesToRead:        nodesToRead,
		})
		t.ReadReqDuration += time.Since(tRequest)
		if err != nil {
			if code, ok := err.(ua.StatusCode); ok {
				switch code {
				case ua.StatusBadEncodingLimitsExceeded,
					ua.StatusBadRequestTooLarge,
					ua.StatusBadResponseTooLarge,
					ua.StatusBadTimeout,
					ua.StatusBadTooManyOperations:
					if t.ReadChunkSize > 1 {
						t.ReadChunkSize = t.ReadChunkSize / 2
						t.log.Debugf("Read request failed with '%s'. Reduced read chunksize to %d", uanodes.StatusCodeString(code), t.ReadChunkSize)
						continue
					}
				case ua.StatusBadUnexpectedError:
					retryCounter--
					if retryCounter > 0 {
						t.log.Debugf("Read request failed with '%s'. Retrying...", uanodes.StatusCodeString(code))
						continue
					}
				}
			}
			return errors.Wrapf(err, "read (%s)", uanodes.UAErrorDesc(err))
		}
		if len(res.Results) != len(nodesToRead) {
			return InvalidResponseError{Service: "Read", Got: len(res.Results), Want: len(nodesToRead)}
		}
		if t.ReadChunkSize < 200 {
			t.ReadChunkSize++
		}
		retryCounter = 3

		t.log.Debugf("Successfully read %d attributes", len(res.Results))
		for k, result := range res.Results {
			t.processReadResult(result, targets[i+k])
		}
		i = j
	}
	return nil
}

func (t *UABrowse) processReadResult(result *ua.DataValue, rt readTarget) {
	if result == nil || result.Status != ua.StatusOK || result.Value == nil {
		return
	}
	def := rt.def
	switch rt.attr {
	case ua.AttributeIDNodeClass:
		def.NodeClass = ua.NodeClass(result.Value.Int())
	case ua.AttributeIDIsAbstract:
		def.IsAbstract = result.Value.Bool()
	case ua.AttributeIDSymmetric:
		def.Symmetric = result.Value.Bool()
	case ua.AttributeIDInverseName:
		if lt := result.Value.LocalizedText(); lt != nil {
			def.InverseName = lt.Text
		}
	default:
		t.log.Debugf("Reading attribute %d currently not implemented", rt.attr)
	}
}
