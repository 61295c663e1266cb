package resource

type Type uint8

/*
Resource represents any external resource that needs to be
initialized/closed with some dependency management. The way to define any
new resource is to create a struct that implements the Config interface.
Using that config, materialize the resource. Any initialization/setup
should be done during this materialization.
*/

const (
	DBConnection Type = 1
)

type Config interface {
	Materialize() (Resource, error)
}

type Resource interface {
	Close() error
	Teardown() error
	Type() Type
}
