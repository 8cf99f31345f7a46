package addrspace

import (
	"github.com/yndnr/uacore-go/internal/core/access"
	"github.com/yndnr/uacore-go/pkg/nodeid"
)

// Well-known namespace 0 node ids.
var (
	RootFolder    = nodeid.NewNumeric(0, 84)
	ObjectsFolder = nodeid.NewNumeric(0, 85)
	TypesFolder   = nodeid.NewNumeric(0, 86)
	ViewsFolder   = nodeid.NewNumeric(0, 87)
	ServerObject  = nodeid.NewNumeric(0, 2253)
)

// AddStandardNodes adds the root folder hierarchy every server exposes. The
// folders are readable and browseable by everyone.
func AddStandardNodes(m *Manager) error {
	public := access.NodeAccessInfo{
		Owner: access.Observation | access.Browseable,
		Group: access.Observation | access.Browseable,
		Other: access.Observation | access.Browseable,
	}
	nodes := []struct {
		id     nodeid.NodeID
		name   string
		parent nodeid.NodeID
	}{
		{RootFolder, "Root", nodeid.Null},
		{ObjectsFolder, "Objects", RootFolder},
		{TypesFolder, "Types", RootFolder},
		{ViewsFolder, "Views", RootFolder},
		{ServerObject, "Server", ObjectsFolder},
	}
	for _, def := range nodes {
		n, err := NewNode(def.id, ClassObject, def.name, TypeNone, WithAccess(public))
		if err != nil {
			return err
		}
		if err := m.AddNode(n, def.parent); err != nil {
			return err
		}
	}
	return nil
}
