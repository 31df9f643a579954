package cell_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/orlink/cell"
	"github.com/nabbar/orlink/event"
)

var _ = Describe("Fixed cell", func() {
	It("round-trips pack/unpack for narrow circ-ids", func() {
		var f cell.Fixed
		f.CircID = 42
		f.Command = cell.CommandRelay
		copy(f.Body[:], []byte("hello"))

		wire := f.Encode(false)
		Expect(wire).To(HaveLen(cell.WireSize(false)))

		got, err := cell.DecodeFixed(wire, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(f))
	})

	It("round-trips pack/unpack for wide circ-ids", func() {
		var f cell.Fixed
		f.CircID = 0x01020304
		f.Command = cell.CommandDestroy

		wire := f.Encode(true)
		Expect(wire).To(HaveLen(cell.WireSize(true)))

		got, err := cell.DecodeFixed(wire, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.CircID).To(Equal(f.CircID))
		Expect(got.Command).To(Equal(f.Command))
	})

	It("rejects a buffer of the wrong length", func() {
		_, err := cell.DecodeFixed([]byte{1, 2, 3}, false)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Variable cell", func() {
	It("always uses a 2-byte circ-id for VERSIONS even when wide", func() {
		v := cell.Variable{CircID: 7, Command: cell.CommandVersions, Body: []byte{0, 3, 0, 4}}
		wire := v.Encode(true)
		// 2 (circ) + 1 (cmd) + 2 (len) + 4 (body) = 9
		Expect(wire).To(HaveLen(9))
	})

	It("uses the wide circ-id width for non-VERSIONS commands", func() {
		v := cell.Variable{CircID: 7, Command: cell.CommandCerts, Body: []byte{1, 2, 3}}
		wire := v.Encode(true)
		// 4 (circ) + 1 (cmd) + 2 (len) + 3 (body) = 10
		Expect(wire).To(HaveLen(10))
	})
})

type fakeLinkState struct {
	proto int
	wide  bool
}

func (f fakeLinkState) LinkProtocol() int { return f.proto }
func (f fakeLinkState) WideCircIDs() bool { return f.wide }

var _ = Describe("Framer", func() {
	var (
		reg      *event.Registry
		src      *event.Source
		fixedLbl event.Label
		varLbl   event.Label
	)

	BeforeEach(func() {
		reg = event.NewRegistry()
		src = event.NewSource(reg, nil)
		fixedLbl = reg.Register("fixed_cell_ev")
		varLbl = reg.Register("var_cell_ev")
	})

	It("stalls on a partial fixed cell and resumes once the rest arrives", func() {
		state := fakeLinkState{proto: 5, wide: false}
		fr := cell.NewFramer(state, src, fixedLbl, varLbl)

		full := cell.Fixed{CircID: 9, Command: cell.CommandRelay}
		wire := full.Encode(false)

		remaining, first, err := fr.Feed(wire[:len(wire)-3])
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(BeFalse())
		Expect(remaining).To(HaveLen(len(wire) - 3))

		remaining2, _, err2 := fr.Feed(wire)
		Expect(err2).NotTo(HaveOccurred())
		Expect(remaining2).To(BeEmpty())
	})

	It("stops after the first VERSIONS when the link protocol is unknown", func() {
		state := fakeLinkState{proto: 0, wide: false}
		fr := cell.NewFramer(state, src, fixedLbl, varLbl)

		v := cell.Variable{CircID: 0, Command: cell.CommandVersions, Body: []byte{0, 3, 0, 4, 0, 5}}
		wire := v.Encode(false)

		remaining, first, err := fr.Feed(wire)
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(BeTrue())
		Expect(remaining).To(BeEmpty())
	})
})
