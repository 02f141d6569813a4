package decoder

import "github.com/open-aviation/skyrebuild/internal/frames"

func init() {
	Register("passthrough", func() Decoder { return Passthrough{} })
}

// Passthrough keeps the decoded fields the source already carries.
// All four operations are no-ops.
type Passthrough struct{}

func (Passthrough) DecodePosition(pos []frames.PositionFrame) []frames.PositionFrame {
	return pos
}

func (Passthrough) DecodeVelocity(vel []frames.VelocityFrame) []frames.VelocityFrame {
	return vel
}

func (Passthrough) DecodeIdentification(ident []frames.IdentificationFrame) []frames.IdentificationFrame {
	return ident
}

func (Passthrough) DecodeRollcall(rc []frames.RollcallFrame) []frames.RollcallFrame {
	return rc
}
