// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"strconv"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

// TypeQTN is the sentence type for a game rotation quaternion:
//
//	$VRQTN,x,y,z,w*CS
const TypeQTN = "QTN"

// QTN is a rotation quaternion sentence.
type QTN struct {
	nmea.BaseSentence
	X, Y, Z, W float64
}

var sentenceParser = nmea.SentenceParser{
	CustomParsers: map[string]nmea.ParserFunc{
		TypeQTN: newQTN,
	},
}

func newQTN(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	p.AssertType(TypeQTN)
	m := QTN{
		BaseSentence: s,
		X:            p.Float64(0, "x"),
		Y:            p.Float64(1, "y"),
		Z:            p.Float64(2, "z"),
		W:            p.Float64(3, "w"),
	}
	return m, p.Err()
}

// ParseRotationSentence decodes one $--QTN line into a rotation vector
// ordered x, y, z, w.
func ParseRotationSentence(line string) ([]float32, error) {
	s, err := sentenceParser.Parse(strings.TrimSpace(line))
	if err != nil {
		return nil, err
	}
	q, ok := s.(QTN)
	if !ok {
		return nil, fmt.Errorf("sentence %s is not a rotation", s.Prefix())
	}
	if q.Fields[3] == "" {
		return []float32{float32(q.X), float32(q.Y), float32(q.Z)}, nil
	}
	return []float32{float32(q.X), float32(q.Y), float32(q.Z), float32(q.W)}, nil
}

// FormatRotationSentence encodes a rotation vector with the VR talker ID.
// A three-component vector is sent as-is with an empty w field.
func FormatRotationSentence(values []float32) string {
	fields := make([]string, 4)
	for i := range fields {
		if i < len(values) {
			fields[i] = strconv.FormatFloat(float64(values[i]), 'f', 6, 32)
		}
	}
	body := "VR" + TypeQTN + "," + strings.Join(fields, ",")
	return "$" + body + "*" + nmea.Checksum(body)
}
