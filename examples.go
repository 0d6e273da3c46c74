package blesail

import _ "embed"

// ExampleProfile is examples/boat.yaml, printed by 'blesail profiles --example'
//
//go:embed examples/boat.yaml
var ExampleProfile string

// ExampleKnotsDecoder is examples/decoders/knots.lua, the Lua decoder used by ExampleProfile
//
//go:embed examples/decoders/knots.lua
var ExampleKnotsDecoder string
