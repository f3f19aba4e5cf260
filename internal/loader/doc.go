// Package loader decodes checkpoint files into raw tensors.
//
// Two formats are supported:
//   - PyTorch: torch.save archives (zip and legacy pickle), decoded with
//     gopickle. The decoded object graph is returned as-is so callers can
//     inspect it (state dict, wrapper dict, ...).
//   - SafeTensors: flat name -> tensor files. F16 and BF16 tensors are
//     widened to float32 on read.
//
// Load picks the format from the file contents, so a checkpoint cached
// under an arbitrary name still decodes.
//
// Example:
//
//	obj, err := loader.Load("cifar10-d875770b.pth")
//	if err != nil {
//	    log.Fatal(err)
//	}
package loader
