package main

// ReduceAutopilot computes the next autopilot state and the commands to emit.
//
// It performs no I/O: sensor reads, randomness and dispatch all happen in the
// worker, which feeds the outcome back in as events.
func ReduceAutopilot(s AutopilotState, ev AutopilotEvent, p AutopilotParams) AutopilotResult {
	switch e := ev.(type) {
	case Control:
		return reduceControl(s, e)
	case Sample:
		return reduceSample(s, e, p)
	default:
		return AutopilotResult{State: s}
	}
}

func preempt(name string, n int) Emit { return Emit{Cmd: CmdN(name, n), Preempt: true} }

func resetCounters(s AutopilotState) AutopilotState {
	s.TouchCount = 0
	s.ReadyCount = 0
	s.Last = LastNone
	s.Side = SideUnset
	s.Recovering = false
	return s
}

func reduceControl(s AutopilotState, c Control) AutopilotResult {
	var out []Emit
	switch c.Op {
	case ControlEnable:
		s = resetCounters(s)
		s.Enabled = true
		s.Engaged = false

	case ControlOn:
		s = resetCounters(s)
		s.Enabled = true
		s.Engaged = true
		out = append(out, Emit{Cmd: Cmd("forward"), Preempt: true})

	case ControlOff:
		if s.Engaged {
			out = append(out, Emit{Cmd: Cmd("stop"), Preempt: true})
		}
		s = resetCounters(s)
		s.Engaged = false

	case ControlDisable:
		if s.Engaged {
			out = append(out, Emit{Cmd: Cmd("stop"), Preempt: true})
		}
		s = resetCounters(s)
		s.Engaged = false
		s.Enabled = false
		s.Epoch++
	}
	return AutopilotResult{State: s, Emits: out}
}

func reduceSample(s AutopilotState, e Sample, p AutopilotParams) AutopilotResult {
	if !s.Enabled || e.Epoch != s.Epoch {
		return AutopilotResult{State: s}
	}

	d := e.Distance
	if e.Fault || d <= 0 {
		d = p.DFar
	}
	s.Distance = d

	if !s.Engaged {
		return reduceReady(s, d, e.Coin, p)
	}

	if d <= p.DTouch {
		return reduceTouch(s, p)
	}
	s.TouchCount = 0

	var out []Emit
	reaction := false
	prev := s.Last

	switch {
	case d <= p.DTooNear:
		if prev != LastTooNear {
			out = append(out, preempt("surprised", 1))
		} else {
			out = append(out, preempt("backward", 1))
		}
		s.Last = LastTooNear
		s.Recovering = true
		reaction = true

	case d <= p.DNear:
		if prev != LastNear {
			if s.Side == SideUnset {
				s.Side = coinOr(e.Coin)
			} else {
				s.Side = s.Side.Opposite()
			}
			out = append(out, preempt("slide_"+s.Side.String(), 1))
		} else {
			out = append(out, preempt("turn_"+s.Side.String(), 1))
		}
		s.Last = LastNear
		s.Recovering = true
		reaction = true

	case d <= p.DNear+p.DYellowMargin:
		if prev == LastTooNear || prev == LastNear {
			out = append(out, Emit{Cmd: Cmd("suriashi_fwd"), Preempt: true})
			s.Recovering = true
		}
		s.Last = LastYellow

	case d >= p.DFar:
		out = s.resume(out)
		s.Recovering = false
		s.Last = LastFar

	default:
		out = s.resume(out)
		s.Recovering = false
		s.Last = LastNone
	}

	return AutopilotResult{State: s, Emits: out, Reaction: reaction}
}

// reduceReady counts consecutive samples in the ready band and engages with
// a greeting once the count commits.
func reduceReady(s AutopilotState, d int, coin Side, p AutopilotParams) AutopilotResult {
	if d < p.DReadyMin || d > p.DReadyMax {
		s.ReadyCount = 0
		return AutopilotResult{State: s}
	}
	s.ReadyCount++
	if s.ReadyCount < p.ReadyCountCommit {
		return AutopilotResult{State: s}
	}

	greet := "hi_right"
	if coinOr(coin) == SideLeft {
		greet = "hi_left"
	}
	s = resetCounters(s)
	s.Engaged = true
	s.Last = LastReady
	return AutopilotResult{
		State: s,
		Emits: []Emit{
			preempt(greet, 1),
			{Cmd: Cmd("forward"), Preempt: false},
		},
		Reaction: true,
	}
}

// reduceTouch startles and backs off on contact; held contact disengages.
func reduceTouch(s AutopilotState, p AutopilotParams) AutopilotResult {
	s.TouchCount++
	if s.TouchCount >= p.TouchCountCommit {
		s = resetCounters(s)
		s.Engaged = false
		return AutopilotResult{
			State: s,
			Emits: []Emit{{Cmd: Cmd("stop"), Preempt: true}},
		}
	}
	s.Last = LastTooNear
	s.Recovering = true
	return AutopilotResult{
		State: s,
		Emits: []Emit{
			preempt("surprised", 1),
			{Cmd: CmdN("backward", 1), Preempt: false},
		},
		Reaction: true,
	}
}

// resume restarts the walk only after an obstacle reaction interrupted it.
func (s AutopilotState) resume(out []Emit) []Emit {
	if !s.Recovering {
		return out
	}
	return append(out, Emit{Cmd: Cmd("forward"), Preempt: true})
}

func coinOr(c Side) Side {
	if c == SideUnset {
		return SideRight
	}
	return c
}
