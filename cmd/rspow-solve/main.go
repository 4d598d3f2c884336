// Command rspow-solve is a small demonstration CLI for the EquiX bundle
// solver: given a master challenge, it fills a ProofBundle and prints the
// result. It exists to exercise package solver end to end, not as a
// production submission client.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/urfave/cli.v1"

	"github.com/probeum/rspow/bundle"
	"github.com/probeum/rspow/solver"
)

var (
	bitsFlag = cli.UintFlag{
		Name:  "bits",
		Usage: "leading-zero-bits difficulty target for each proof",
		Value: 0,
	}
	threadsFlag = cli.IntFlag{
		Name:  "threads",
		Usage: "number of worker goroutines searching each proof index",
		Value: 1,
	}
	requiredFlag = cli.UintFlag{
		Name:  "required",
		Usage: "number of proofs the bundle must contain",
		Value: 1,
	}
	masterFlag = cli.StringFlag{
		Name:  "master",
		Usage: "32-byte master challenge, hex encoded",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "rspow-solve"
	app.Usage = "solve an EquiX proof bundle against a master challenge"
	app.Commands = []cli.Command{solveCommand}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rspow-solve: %v\n", err)
		os.Exit(1)
	}
}

var solveCommand = cli.Command{
	Name:   "solve",
	Usage:  "solve --bits N --threads T --required K --master HEX",
	Action: runSolve,
	Flags:  []cli.Flag{bitsFlag, threadsFlag, requiredFlag, masterFlag},
}

func runSolve(ctx *cli.Context) error {
	masterHex := ctx.String(masterFlag.Name)
	if masterHex == "" {
		return cli.NewExitError("rspow-solve: --master is required", 2)
	}
	raw, err := hex.DecodeString(masterHex)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("rspow-solve: invalid --master hex: %v", err), 2)
	}
	if len(raw) != 32 {
		return cli.NewExitError(fmt.Sprintf("rspow-solve: --master must decode to 32 bytes, got %d", len(raw)), 2)
	}
	var master [32]byte
	copy(master[:], raw)

	jobID := uuid.New().String()
	fmt.Fprintf(os.Stderr, "rspow-solve: job %s starting\n", jobID)

	s, err := solver.Builder{
		Bits:           uint32(ctx.Uint(bitsFlag.Name)),
		Threads:        ctx.Int(threadsFlag.Name),
		RequiredProofs: uint32(ctx.Uint(requiredFlag.Name)),
	}.Build()
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("rspow-solve: %v", err), 2)
	}

	b, err := s.SolveBundle(master)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("rspow-solve: %v", err), 1)
	}

	out, err := json.MarshalIndent(wireBundle(jobID, b), "", "  ")
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("rspow-solve: %v", err), 1)
	}
	fmt.Println(string(out))
	return nil
}

// wireProof and wireBundle give the CLI's JSON output hex-encoded byte
// fields instead of the raw array rendering encoding/json gives [N]byte.
type wireProof struct {
	ID        uint64 `json:"id"`
	Challenge string `json:"challenge"`
	Solution  string `json:"solution"`
}

type wireBundleT struct {
	JobID           string      `json:"job_id"`
	MasterChallenge string      `json:"master_challenge"`
	Bits            uint32      `json:"bits"`
	Proofs          []wireProof `json:"proofs"`
}

func wireBundle(jobID string, b *bundle.Bundle) wireBundleT {
	out := wireBundleT{
		JobID:           jobID,
		MasterChallenge: hex.EncodeToString(b.MasterChallenge[:]),
		Bits:            b.Config.Bits,
		Proofs:          make([]wireProof, len(b.Proofs)),
	}
	for i, p := range b.Proofs {
		out.Proofs[i] = wireProof{
			ID:        p.ID,
			Challenge: hex.EncodeToString(p.Challenge[:]),
			Solution:  hex.EncodeToString(p.Solution[:]),
		}
	}
	return out
}
