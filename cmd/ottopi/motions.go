package main

import "sort"

// MotionID identifies one entry of the closed motion set.
type MotionID int

const (
	MotionNull MotionID = iota
	MotionStop
	MotionHome

	MotionForward
	MotionBackward
	MotionRightForward
	MotionLeftForward
	MotionRightBackward
	MotionLeftBackward
	MotionSuriashiForward
	MotionTurnRight
	MotionTurnLeft
	MotionSlideRight
	MotionSlideLeft

	MotionHappy
	MotionHiRight
	MotionHiLeft
	MotionSurprised
	MotionOjigi
	MotionOjigi2

	MotionMoveUp0
	MotionMoveDown0
	MotionMoveUp1
	MotionMoveDown1
	MotionMoveUp2
	MotionMoveDown2
	MotionMoveUp3
	MotionMoveDown3

	MotionHomeUp0
	MotionHomeDown0
	MotionHomeUp1
	MotionHomeDown1
	MotionHomeUp2
	MotionHomeDown2
	MotionHomeUp3
	MotionHomeDown3

	motionCount
)

// motionSpec binds a motion name to its gait.
//
// loop marks gaits that repeat whole cycles and honour the stop flag between
// them; everything else runs to completion once started.
type motionSpec struct {
	name string
	loop bool
	run  func(g *GaitLibrary, n int) error
}

var motionTable = [motionCount]motionSpec{
	MotionNull: {"null", false, (*GaitLibrary).null},
	MotionStop: {"stop", false, (*GaitLibrary).stop},
	MotionHome: {"home", false, (*GaitLibrary).home},

	MotionForward:         {"forward", true, (*GaitLibrary).forward},
	MotionBackward:        {"backward", true, (*GaitLibrary).backward},
	MotionRightForward:    {"right_forward", true, (*GaitLibrary).rightForward},
	MotionLeftForward:     {"left_forward", true, (*GaitLibrary).leftForward},
	MotionRightBackward:   {"right_backward", true, (*GaitLibrary).rightBackward},
	MotionLeftBackward:    {"left_backward", true, (*GaitLibrary).leftBackward},
	MotionSuriashiForward: {"suriashi_fwd", true, (*GaitLibrary).suriashiForward},
	MotionTurnRight:       {"turn_right", true, (*GaitLibrary).turnRight},
	MotionTurnLeft:        {"turn_left", true, (*GaitLibrary).turnLeft},
	MotionSlideRight:      {"slide_right", true, (*GaitLibrary).slideRight},
	MotionSlideLeft:       {"slide_left", true, (*GaitLibrary).slideLeft},

	MotionHappy:     {"happy", false, (*GaitLibrary).happy},
	MotionHiRight:   {"hi_right", false, (*GaitLibrary).hiRight},
	MotionHiLeft:    {"hi_left", false, (*GaitLibrary).hiLeft},
	MotionSurprised: {"surprised", false, (*GaitLibrary).surprised},
	MotionOjigi:     {"ojigi", false, (*GaitLibrary).ojigi},
	MotionOjigi2:    {"ojigi2", false, (*GaitLibrary).ojigi2},

	MotionMoveUp0:   {"move_up0", false, trimMove(0, +trimMoveStep)},
	MotionMoveDown0: {"move_down0", false, trimMove(0, -trimMoveStep)},
	MotionMoveUp1:   {"move_up1", false, trimMove(1, +trimMoveStep)},
	MotionMoveDown1: {"move_down1", false, trimMove(1, -trimMoveStep)},
	MotionMoveUp2:   {"move_up2", false, trimMove(2, +trimMoveStep)},
	MotionMoveDown2: {"move_down2", false, trimMove(2, -trimMoveStep)},
	MotionMoveUp3:   {"move_up3", false, trimMove(3, +trimMoveStep)},
	MotionMoveDown3: {"move_down3", false, trimMove(3, -trimMoveStep)},

	MotionHomeUp0:   {"home_up0", false, trimHome(0, +trimHomeStep)},
	MotionHomeDown0: {"home_down0", false, trimHome(0, -trimHomeStep)},
	MotionHomeUp1:   {"home_up1", false, trimHome(1, +trimHomeStep)},
	MotionHomeDown1: {"home_down1", false, trimHome(1, -trimHomeStep)},
	MotionHomeUp2:   {"home_up2", false, trimHome(2, +trimHomeStep)},
	MotionHomeDown2: {"home_down2", false, trimHome(2, -trimHomeStep)},
	MotionHomeUp3:   {"home_up3", false, trimHome(3, +trimHomeStep)},
	MotionHomeDown3: {"home_down3", false, trimHome(3, -trimHomeStep)},
}

var motionByName = func() map[string]MotionID {
	m := make(map[string]MotionID, motionCount)
	for id, e := range motionTable {
		m[e.name] = MotionID(id)
	}
	return m
}()

// LookupMotion resolves a command name.
func LookupMotion(name string) (MotionID, bool) {
	id, ok := motionByName[name]
	return id, ok
}

func (id MotionID) String() string {
	if id < 0 || id >= motionCount {
		return "unknown"
	}
	return motionTable[id].name
}

// Loop reports whether the motion repeats whole cycles until stopped.
func (id MotionID) Loop() bool {
	if id < 0 || id >= motionCount {
		return false
	}
	return motionTable[id].loop
}

// MotionNames lists every motion name, sorted.
func MotionNames() []string {
	names := make([]string, 0, motionCount)
	for _, e := range motionTable {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

func trimMove(ch, units int) func(g *GaitLibrary, n int) error {
	return func(g *GaitLibrary, n int) error { return g.changePos(ch, units, n) }
}

func trimHome(ch, pulses int) func(g *GaitLibrary, n int) error {
	return func(g *GaitLibrary, n int) error { return g.adjustHome(ch, pulses, n) }
}
