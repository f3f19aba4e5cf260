package checkpoint

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cifar/internal/loader"
	"github.com/born-ml/cifar/internal/testutil"
)

func param(values ...float32) testutil.Parameter {
	return testutil.Parameter{Tensor: testutil.Tensor{Float32: values, Shape: []int{len(values)}}}
}

// localStore registers each file under its key.
func localStore(t *testing.T, files map[string]string) *Store {
	t.Helper()
	store := &Store{Registry: NewRegistry(), Fetcher: &Fetcher{CacheDir: t.TempDir(), Offline: true}}
	for key, path := range files {
		store.Registry.Register(key, path)
	}
	return store
}

func TestStore_LoadTorchModule(t *testing.T) {
	norm := testutil.Module{
		Class: "torch.nn.modules.batchnorm.BatchNorm2d",
		Buffers: testutil.OrderedDict{
			{Key: "running_mean", Value: testutil.Tensor{Float32: []float32{0.5, -0.5}, Shape: []int{2}}},
			{Key: "running_var", Value: testutil.Tensor{Float32: []float32{1, 2}, Shape: []int{2}}},
			{Key: "num_batches_tracked", Value: testutil.Tensor{Int64: []int64{7}, Shape: []int{}}},
			{Key: "scratch", Value: testutil.Tensor{Float32: []float32{0}, Shape: []int{1}}},
		},
		NonPersistent: []string{"scratch"},
	}
	path := filepath.Join(t.TempDir(), "cifar.pth")
	testutil.WriteTorch(t, path, testutil.Module{
		Class: "models.CIFAR",
		Modules: testutil.OrderedDict{
			{Key: "features", Value: testutil.Module{
				Class: "torch.nn.modules.container.Sequential",
				Modules: testutil.OrderedDict{
					{Key: "0", Value: testutil.Module{
						Class:      "torch.nn.modules.conv.Conv2d",
						Parameters: testutil.OrderedDict{{Key: "weight", Value: param(1, 2)}, {Key: "bias", Value: param(3, 4)}},
					}},
					{Key: "1", Value: norm},
					{Key: "2", Value: testutil.Module{Class: "torch.nn.modules.activation.ReLU"}},
				},
			}},
			{Key: "classifier", Value: testutil.Module{
				Class: "torch.nn.modules.container.Sequential",
				Modules: testutil.OrderedDict{
					{Key: "0", Value: testutil.Module{
						Class:      "torch.nn.modules.linear.Linear",
						Parameters: testutil.OrderedDict{{Key: "weight", Value: param(5, 6)}, {Key: "bias", Value: nil}},
					}},
				},
			}},
		},
	})

	state, err := localStore(t, map[string]string{"cifar10": path}).Load(context.Background(), "cifar10")
	require.NoError(t, err)

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := []string{
		"classifier.0.weight",
		"features.0.bias",
		"features.0.weight",
		"features.1.num_batches_tracked",
		"features.1.running_mean",
		"features.1.running_var",
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("state keys mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []float32{3, 4}, state["features.0.bias"].AsFloat32())
	assert.Equal(t, []float32{0.5, -0.5}, state["features.1.running_mean"].AsFloat32())
	assert.Equal(t, []int64{7}, state["features.1.num_batches_tracked"].AsInt64())
	assert.Equal(t, []float32{5, 6}, state["classifier.0.weight"].AsFloat32())
}

func TestStore_LoadTorchNotModule(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"namespace": filepath.Join(dir, "namespace.pth"),
		"child":     filepath.Join(dir, "child.pth"),
		"list":      filepath.Join(dir, "list.pth"),
	}
	testutil.WriteTorch(t, files["namespace"], testutil.Instance{
		Class: "argparse.Namespace",
		Attrs: testutil.Dict{{Key: "lr", Value: 0.1}},
	})
	testutil.WriteTorch(t, files["child"], testutil.Module{
		Class:   "models.CIFAR",
		Modules: testutil.OrderedDict{{Key: "features", Value: "not a module"}},
	})
	testutil.WriteTorch(t, files["list"], testutil.Tuple{param(1), param(2)})
	store := localStore(t, files)

	tests := []struct {
		key   string
		entry string
		got   string
	}{
		{"namespace", "", "an instance of argparse.Namespace"},
		{"child", "features", "string"},
		{"list", "", "a tuple"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			_, err := store.Load(context.Background(), tt.key)
			require.True(t, errors.Is(err, ErrNotMapping), "got %v", err)

			var typeErr *TypeAssertionError
			require.ErrorAs(t, err, &typeErr)
			assert.Equal(t, tt.key, typeErr.Key)
			assert.Equal(t, tt.entry, typeErr.Entry)
			assert.Equal(t, tt.got, typeErr.Got)
		})
	}

	// Decoded objects stay recognizable to callers
	obj, err := loader.Load(files["namespace"])
	require.NoError(t, err)
	assert.IsType(t, &loader.Object{}, obj)
}
