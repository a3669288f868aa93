package bridge

import (
	"reflect"

	"github.com/traefik/yaegi/interp"

	"github.com/gosuda/vrcreator/internal/scene"
)

// ScenePackage is the import path generated modules use for the runtime API.
const ScenePackage = "creator/scene"

// Symbols exports the scene capability surface to the interpreter.
var Symbols = interp.Exports{ //nolint:gochecknoglobals // yaegi export table
	ScenePackage + "/scene": {
		// types
		"Runtime":      reflect.ValueOf((*scene.Runtime)(nil)),
		"Entity":       reflect.ValueOf((*scene.Entity)(nil)),
		"EntityID":     reflect.ValueOf((*scene.EntityID)(nil)),
		"ResourceID":   reflect.ValueOf((*scene.ResourceID)(nil)),
		"Vec3":         reflect.ValueOf((*scene.Vec3)(nil)),
		"Kind":         reflect.ValueOf((*scene.Kind)(nil)),
		"Body":         reflect.ValueOf((*scene.Body)(nil)),
		"MeshSpec":     reflect.ValueOf((*scene.MeshSpec)(nil)),
		"Disposable":   reflect.ValueOf((*scene.Disposable)(nil)),
		"DisposeFunc":  reflect.ValueOf((*scene.DisposeFunc)(nil)),
		"ResourceKind": reflect.ValueOf((*scene.ResourceKind)(nil)),

		// functions
		"V": reflect.ValueOf(scene.V),

		// constants
		"KindBox":    reflect.ValueOf(scene.KindBox),
		"KindSphere": reflect.ValueOf(scene.KindSphere),
		"KindPlane":  reflect.ValueOf(scene.KindPlane),
		"KindLabel":  reflect.ValueOf(scene.KindLabel),
		"KindLight":  reflect.ValueOf(scene.KindLight),
		"KindModel":  reflect.ValueOf(scene.KindModel),
		"KindGroup":  reflect.ValueOf(scene.KindGroup),
		"KindCustom": reflect.ValueOf(scene.KindCustom),

		// errors
		"ErrRevoked":  reflect.ValueOf(&scene.ErrRevoked).Elem(),
		"ErrNotOwned": reflect.ValueOf(&scene.ErrNotOwned).Elem(),

		// interface wrapper so interpreted types can implement Disposable
		"_Disposable": reflect.ValueOf((*_scene_Disposable)(nil)),
	},
}

type _scene_Disposable struct { //nolint:revive,stylecheck // yaegi wrapper naming
	IValue   interface{}
	WDispose func() error
}

func (w _scene_Disposable) Dispose() error { return w.WDispose() }
