package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect SNAPSHOT",
	Short: "Show snapshot and tree statistics",
	Long: `Restore a snapshot and report arena usage and the number of nodes
per tree depth.

Examples:
  svoctl inspect terrain.svo
  svoctl inspect --bool mask.svo`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var getCmd = &cobra.Command{
	Use:   "get SNAPSHOT X Y Z",
	Short: "Print the value of a voxel",
	Args:  cobra.ExactArgs(4),
	RunE:  runGet,
}

var lodDepth int

var lodCmd = &cobra.Command{
	Use:   "lod SNAPSHOT",
	Short: "List uniform regions down to a level of detail",
	Long: `Walk the tree down to the given depth and list every region with its
grid position, width and aggregate value. Empty regions are skipped.

Examples:
  svoctl lod --depth 2 terrain.svo`,
	Args: cobra.ExactArgs(1),
	RunE: runLOD,
}

func init() {
	lodCmd.Flags().IntVarP(&lodDepth, "depth", "d", 1, "Maximum depth, -1 for voxel level")
}

func runInspect(cmd *cobra.Command, args []string) error {
	tree, r, err := openSnapshot(args[0])
	if err != nil {
		return err
	}
	defer tree.Close()

	s := tree.Stats()
	printPairs(cmd.OutOrStdout(), [][2]string{
		{"Grid size", strconv.FormatUint(uint64(s.GridSize), 10)},
		{"Depth", strconv.Itoa(s.Depth)},
		{"Voxel size", strconv.Itoa(r.VoxelSize())},
		{"Chunks", strconv.Itoa(s.Arena.Chunks)},
		{"Chunk size", strconv.Itoa(r.BlockSize())},
		{"Slot size", strconv.Itoa(s.Arena.SlotSize)},
		{"Slots per chunk", strconv.Itoa(s.Arena.SlotsPerChunk)},
		{"Live slots", strconv.Itoa(s.Arena.Live)},
		{"Free slots", strconv.Itoa(s.Arena.Free)},
		{"Uncarved slots", strconv.Itoa(s.Arena.Uncarved)},
		{"Nodes", strconv.Itoa(s.Nodes)},
	})
	fmt.Fprintln(cmd.OutOrStdout())

	rows := make([][]string, 0, len(s.PerDepth))
	for depth, n := range s.PerDepth {
		rows = append(rows, []string{strconv.Itoa(depth), strconv.Itoa(n)})
	}
	printTable(cmd.OutOrStdout(), []string{"Depth", "Nodes"}, rows)
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	tree, _, err := openSnapshot(args[0])
	if err != nil {
		return err
	}
	defer tree.Close()

	var xyz [3]uint32
	for i := range xyz {
		if xyz[i], err = parseCoord(args[i+1], tree.GridSize()); err != nil {
			return err
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), tree.ValueAt(xyz[0], xyz[1], xyz[2]))
	return nil
}

func runLOD(cmd *cobra.Command, args []string) error {
	tree, _, err := openSnapshot(args[0])
	if err != nil {
		return err
	}
	defer tree.Close()

	var rows [][]string
	tree.Regions(lodDepth, func(r region) bool {
		if !r.Occupied {
			return true
		}
		x, y, z, w := r.Bounds.Grid(tree.GridSize())
		rows = append(rows, []string{
			strconv.Itoa(r.Path.Len()),
			fmt.Sprintf("%d,%d,%d", x, y, z),
			strconv.FormatUint(uint64(w), 10),
			r.Value,
		})
		return true
	})
	printTable(cmd.OutOrStdout(), []string{"Depth", "Origin", "Width", "Value"}, rows)
	return nil
}
