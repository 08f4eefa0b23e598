package mixture

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvae/iwae"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var c Component
	serializer.RegisterTypedDeserializer(c.SerializerType(), DeserializeComponent)
	var l componentList
	serializer.RegisterTypedDeserializer(l.SerializerType(), deserializeComponentList)
}

// A Component is one model in a Mixture.
type Component struct {
	Model *iwae.Model

	// Basic is true for independent components and false
	// for sub-nodes built on top of basic ones.
	Basic bool

	// Trainable is false once the component is frozen.
	Trainable bool

	// TrainNLL is the negative log-likelihood of the data
	// the component was trained on.
	// It is NaN until it has been measured.
	TrainNLL float64
}

// DeserializeComponent deserializes a Component.
func DeserializeComponent(d []byte) (*Component, error) {
	var res Component
	err := serializer.DeserializeAny(d, &res.Model, &res.Basic, &res.Trainable, &res.TrainNLL)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Component", err)
	}
	return &res, nil
}

// Parameters returns the component's own parameters.
// Layers shared from basic components are excluded.
func (c *Component) Parameters() []*anydiff.Var {
	return c.Model.Parameters()
}

// SerializerType returns the unique ID used to serialize
// a Component with the serializer package.
func (c *Component) SerializerType() string {
	return "github.com/unixpickle/anyvae/mixture.Component"
}

// Serialize serializes the component.
func (c *Component) Serialize() ([]byte, error) {
	return serializer.SerializeAny(c.Model, c.Basic, c.Trainable, c.TrainNLL)
}

type componentList []*Component

func deserializeComponentList(d []byte) (componentList, error) {
	slice, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, err
	}
	res := make(componentList, len(slice))
	for i, x := range slice {
		c, ok := x.(*Component)
		if !ok {
			return nil, fmt.Errorf("not a Component: %T", x)
		}
		res[i] = c
	}
	return res, nil
}

func (c componentList) SerializerType() string {
	return "github.com/unixpickle/anyvae/mixture.componentList"
}

func (c componentList) Serialize() ([]byte, error) {
	slice := make([]serializer.Serializer, len(c))
	for i, x := range c {
		slice[i] = x
	}
	return serializer.SerializeSlice(slice)
}
