// Package browser imports the type model of a running OPC UA server.
package browser

import (
	"context"
	"fmt"
	"time"

	uanodes "github.com/comsys/uanodes/modules/opcua"
	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/namespace"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Client is the part of an OPC UA session the importer needs. It is
// satisfied by *opcua.Client.
type Client interface {
	Browse(req *ua.BrowseRequest) (*ua.BrowseResponse, error)
	BrowseNext(req *ua.BrowseNextRequest) (*ua.BrowseNextResponse, error)
	Read(req *ua.ReadRequest) (*ua.ReadResponse, error)
}

// InvalidResponseError reports a response that does not match its request.
type InvalidResponseError struct {
	Service   string
	Got, Want int
}

func (e InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid %s response: got %d results want %d", e.Service, e.Got, e.Want)
}

// NodeDef is one node found while browsing.
type NodeDef struct {
	NodeID         *ua.NodeID
	NodeClass      ua.NodeClass
	BrowseName     string
	DisplayName    string
	Parent         *ua.NodeID
	RelationType   *ua.NodeID
	TypeDefinition *ua.NodeID
	IsAbstract     bool
	Symmetric      bool
	InverseName    string
}

type task struct {
	node   *ua.NodeID
	isType bool
}

// UABrowse walks the type hierarchies below Roots along HasSubtype and the
// instance declarations of every type along Aggregates, then reads the
// attributes the model needs. It implements model.Source.
type UABrowse struct {
	Client          Client
	Endpoint        string
	SleepTime       time.Duration
	BrowseChunkSize int
	ReadChunkSize   int
	// MaxChildren bounds the instance declarations imported per node.
	MaxChildren int
	Roots       []*ua.NodeID

	NumReadReq        uint64
	NumBrowseReq      uint64
	ReadReqDuration   time.Duration
	BrowseReqDuration time.Duration

	nodes    map[string]*NodeDef
	order    []*NodeDef
	siblings map[string]map[string]bool
	log      *log.Entry
}

func (t *UABrowse) Name() string { return "live:" + t.Endpoint }

// Load browses the server and returns its types as a batch whose namespace
// table is the server's namespace array.
func (t *UABrowse) Load(ctx context.Context) (*model.Batch, error) {
	t.log = uanodes.ContextLogger(uanodes.WithEndpoint(ctx, t.Endpoint))
	t.nodes = make(map[string]*NodeDef)
	t.siblings = make(map[string]map[string]bool)
	t.order = t.order[:0]
	if t.BrowseChunkSize <= 0 {
		t.BrowseChunkSize = 50
	}
	if t.ReadChunkSize <= 0 {
		t.ReadChunkSize = 50
	}
	if t.MaxChildren <= 0 {
		t.MaxChildren = 50
	}
	roots := t.Roots
	if len(roots) == 0 {
		roots = DefaultRoots
	}

	uris, err := t.readNamespaceArray(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reading namespace array")
	}
	if len(uris) == 0 || uris[0] != namespace.BaseURI {
		return nil, errors.Errorf("server namespace array does not start with %s", namespace.BaseURI)
	}
	batch, err := model.NewBatch(t.Name(), uris[1:]...)
	if err != nil {
		return nil, err
	}

	var queue []task
	for _, r := range roots {
		t.nodes[r.String()] = nil
		queue = append(queue, task{node: r, isType: true})
	}
	if err := t.browseBFS(ctx, queue); err != nil {
		return nil, err
	}
	if err := t.readNodeAttributes(ctx); err != nil {
		return nil, err
	}
	if err := t.fillBatch(batch); err != nil {
		return nil, err
	}
	t.log.Infof("Imported %d nodes with %d browse and %d read requests", len(batch.Definitions), t.NumBrowseReq, t.NumReadReq)
	return batch, nil
}

// Nodes returns the nodes found by the last Load in discovery order.
func (t *UABrowse) Nodes() []*NodeDef { return t.order }

func (t *UABrowse) sleep(ctx context.Context) error {
	if t.SleepTime <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(t.SleepTime):
		return nil
	}
}

func (t *UABrowse) readNamespaceArray(ctx context.Context) ([]string, error) {
	if err := t.sleep(ctx); err != nil {
		return nil, err
	}
	t.NumReadReq++
	res, err := t.Client.Read(&ua.ReadRequest{
		TimestampsToReturn: ua.TimestampsToReturnNeither,
		NodesToRead: []*ua.ReadValueID{
			{NodeID: ua.NewNumericNodeID(0, id.Server_NamespaceArray), AttributeID: ua.AttributeIDValue},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(res.Results) != 1 {
		return nil, InvalidResponseError{Service: "Read", Got: len(res.Results), Want: 1}
	}
	dv := res.Results[0]
	if dv.Status != ua.StatusOK {
		return nil, dv.Status
	}
	if dv.Value == nil {
		return nil, errors.New("empty namespace array")
	}
	uris, ok := dv.Value.Value().([]string)
	if !ok {
		return nil, errors.Errorf("namespace array has type %T", dv.Value.Value())
	}
	return uris, nil
}

// browseBFS browses queue level by level. Chunks that the server rejects as
// too large are retried with half the chunk size.
func (t *UABrowse) browseBFS(ctx context.Context, queue []task) error {
	retryCounter := 3
	for len(queue) > 0 {
		// do not overload server with too many requests
		if err := t.sleep(ctx); err != nil {
			return err
		}
		end := t.BrowseChunkSize
		if end > len(queue) {
			end = len(queue)
		}
		chunk := queue[:end]
		queue = queue[end:]
		t.log.Debugf("Querying %d nodes for references. Queuelen: %d", len(chunk), len(queue))

		nodesToBrowse, owners := nodesToBrowseFor(chunk)
		tRequest := time.Now()
		browseResult, err := t.Client.Browse(&ua.BrowseRequest{
			View: &ua.ViewDescription{
				ViewID:    ua.NewTwoByteNodeID(0),
				Timestamp: time.Now(),
			},
			RequestedMaxReferencesPerNode: 100,
			NodesToBrowse:                 nodesToBrowse,
		})
		t.BrowseReqDuration += time.Since(tRequest)
		t.NumBrowseReq++
		if err != nil {
			if code, ok := err.(ua.StatusCode); ok {
				switch code {
				case ua.StatusBadEncodingLimitsExceeded,
					ua.StatusBadRequestTooLarge,
					ua.StatusBadResponseTooLarge,
					ua.StatusBadTimeout,
					ua.StatusBadTooManyOperations:
					if t.BrowseChunkSize > 1 {
						queue = append(append([]task{}, chunk...), queue...)
						t.BrowseChunkSize = t.BrowseChunkSize / 2
						t.log.Debugf("Browse returned error: %s. Reduced browse chunk size to %d", uanodes.StatusCodeString(code), t.BrowseChunkSize)
						continue
					}
				case ua.StatusBadUnexpectedError:
					retryCounter--
					if retryCounter > 0 {
						queue = append(append([]task{}, chunk...), queue...)
						t.log.Debugf("Browse returned error: %s. Retrying...", uanodes.StatusCodeString(code))
						continue
					}
				}
			}
			t.log.Errorf("Error while browsing nodes: %s", err)
			return errors.Wrapf(err, "browse (%s)", uanodes.UAErrorDesc(err))
		}
		if len(browseResult.Results) != len(nodesToBrowse) {
			return InvalidResponseError{Service: "Browse", Got: len(browseResult.Results), Want: len(nodesToBrowse)}
		}
		if t.BrowseChunkSize < 100 {
			t.BrowseChunkSize++
		}
		retryCounter = 3

		for i, result := range browseResult.Results {
			found, err := t.extractBrowseResults(ctx, result, owners[i])
			if err != nil {
				return err
			}
			queue = append(queue, found...)
		}
		t.log.Debugf("Got browse response. browse queue: %d, total seen: %d, browse chunk size: %d",
			len(queue), len(t.order), t.BrowseChunkSize)
	}
	t.log.Debug("Browse completed")
	return nil
}

func (t *UABrowse) extractBrowseResults(ctx context.Context, result *ua.BrowseResult, owner task) ([]task, error) {
	var found []task
	children := 0
	parent := owner.node.String()
	queue := []*ua.BrowseResult{result}

	for len(queue) > 0 {
		result = queue[0]
		queue = queue[1:]
		if result.StatusCode != ua.StatusOK {
			t.log.Debugf("Browsing %s returned %s", parent, uanodes.StatusCodeString(result.StatusCode))
		}
		for _, ref := range result.References {
			if !ref.IsForward || ref.NodeID == nil || ref.NodeID.NodeID == nil {
				continue
			}
			nodeID := ref.NodeID.NodeID
			isType := ref.ReferenceTypeID != nil && ref.ReferenceTypeID.String() == hasSubtype.String()
			if !isType && children >= t.MaxChildren {
				continue
			}
			// Deduplicate by skipping already known nodes
			if _, ok := t.nodes[nodeID.String()]; ok {
				continue
			}
			def := addNodeFromReference(nodeID, ref, owner.node)
			if def.BrowseName == "" {
				t.log.Debugf("Skipping %s below %s: no browse name", nodeID, parent)
				continue
			}
			if !isType {
				// names are unique per parent in the registry, but only
				// qualified names are unique on the server
				if t.siblings[parent][def.BrowseName] {
					t.log.Debugf("Skipping %s: browse name %q already used below %s", nodeID, def.BrowseName, parent)
					continue
				}
				if t.siblings[parent] == nil {
					t.siblings[parent] = make(map[string]bool)
				}
				t.siblings[parent][def.BrowseName] = true
				children++
			}
			t.nodes[nodeID.String()] = def
			t.order = append(t.order, def)
			found = append(found, task{node: nodeID, isType: isType})
		}
		if result.ContinuationPoint == nil {
			return found, nil
		}
		if children >= t.MaxChildren {
			// free continuation point on server
			_, err := t.Client.BrowseNext(&ua.BrowseNextRequest{
				ReleaseContinuationPoints: true,
				ContinuationPoints:        [][]byte{result.ContinuationPoint},
			})
			if err != nil {
				t.log.Debugf("Error while releasing continuation point: '%s'", err)
			}
			return found, nil
		}
		next, err := t.sendBrowseNextRequest(ctx, result)
		if err != nil {
			return found, err
		}
		queue = append(queue, next.Results...)
	}
	return found, nil
}

func addNodeFromReference(nodeID *ua.NodeID, ref *ua.ReferenceDescription, parent *ua.NodeID) *NodeDef {
	def := &NodeDef{
		NodeID:       nodeID,
		NodeClass:    ref.NodeClass,
		Parent:       parent,
		RelationType: ref.ReferenceTypeID,
	}
	if ref.BrowseName != nil {
		def.BrowseName = ref.BrowseName.Name
	}
	if ref.DisplayName != nil {
		def.DisplayName = ref.DisplayName.Text
	}
	if ref.TypeDefinition != nil && ref.TypeDefinition.NodeID != nil {
		def.TypeDefinition = ref.TypeDefinition.NodeID
	}
	return def
}

func (t *UABrowse) sendBrowseNextRequest(ctx context.Context, result *ua.BrowseResult) (*ua.BrowseNextResponse, error) {
	if err := t.sleep(ctx); err != nil {
		return nil, err
	}
	tRequest := time.Now()
	res, err := t.Client.BrowseNext(&ua.BrowseNextRequest{
		ReleaseContinuationPoints: false,
		ContinuationPoints:        [][]byte{result.ContinuationPoint},
	})
	t.BrowseReqDuration += time.Since(tRequest)
	t.NumBrowseReq++
	if err != nil {
		t.log.Errorf("Error while browsing next nodes: %s", err)
		return nil, errors.Wrapf(err, "browse next (%s)", uanodes.UAErrorDesc(err))
	}
	return res, nil
}

func (t *UABrowse) fillBatch(batch *model.Batch) error {
	for _, def := range t.order {
		class := def.NodeClass
		if class == ua.NodeClassUnspecified {
			t.log.Debugf("Skipping %s: unknown node class", def.NodeID)
			continue
		}
		nid, err := nodeid.FromUA(def.NodeID)
		if err != nil {
			return err
		}
		parent, err := nodeid.FromUA(def.Parent)
		if err != nil {
			return err
		}
		d := model.Definition{
			ID:          nodeid.Expand(nid),
			BrowseName:  def.BrowseName,
			DisplayName: def.DisplayName,
			NodeClass:   class,
			IsAbstract:  def.IsAbstract,
			IsSymmetric: def.Symmetric,
			InverseName: def.InverseName,
			Parent:      &model.Relation{Parent: nodeid.Expand(parent)},
		}
		if def.RelationType != nil {
			rel, err := nodeid.FromUA(def.RelationType)
			if err != nil {
				return err
			}
			d.Parent.ReferenceType = nodeid.Expand(rel)
		}
		if def.TypeDefinition != nil && (class == ua.NodeClassObject || class == ua.NodeClassVariable) {
			td, err := nodeid.FromUA(def.TypeDefinition)
			if err != nil {
				return err
			}
			d.TypeDefinition = nodeid.Expand(td)
		}
		batch.Definitions = append(batch.Definitions, d)
	}
	return nil
}
