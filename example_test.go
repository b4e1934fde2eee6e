package regionstore_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/regionstore"
	"github.com/hupe1980/regionstore/coord"
	"github.com/hupe1980/regionstore/region"
)

// Example demonstrates saving and loading a chunk.
func Example() {
	dir, err := os.MkdirTemp("", "regionstore-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := regionstore.Open(dir)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	c := coord.Chunk(-3, 17)

	if err := store.Save(ctx, c, []byte("opaque chunk bytes")); err != nil {
		log.Fatal(err)
	}

	data, found, err := store.Load(ctx, c)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(found, string(data))
	fmt.Println(coord.RegionOf(c).FileName())

	_, found, _ = store.Load(ctx, coord.Chunk(1000, 1000))
	fmt.Println(found)
	// Output:
	// true opaque chunk bytes
	// r.-1.0.mca
	// false
}

// Example_withRegion demonstrates leasing a region for direct access.
func Example_withRegion() {
	dir, err := os.MkdirTemp("", "regionstore-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := regionstore.Open(dir, regionstore.WithMaxOpenRegions(8))
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	rc := coord.Region(0, 0)

	for i := range 3 {
		if err := store.Save(ctx, coord.ChunkAt(rc, i), []byte{byte(i)}); err != nil {
			log.Fatal(err)
		}
	}

	err = store.WithRegion(ctx, rc, func(f *region.File) error {
		for c := range f.Chunks() {
			e, _ := f.Extent(c)
			fmt.Println(c, e)
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
	// Output:
	// chunk(0,0) [2+1)
	// chunk(1,0) [3+1)
	// chunk(2,0) [4+1)
}
