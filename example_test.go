package pmago_test

import (
	"fmt"

	"github.com/hupe1980/pmago"
)

func Example() {
	pma, err := pmago.New()
	if err != nil {
		panic(err)
	}
	defer pma.Close()

	for i := int64(1); i <= 5; i++ {
		if err := pma.Insert(i*10, i); err != nil {
			panic(err)
		}
	}

	if v, ok := pma.Find(30); ok {
		fmt.Println("find(30):", v)
	}

	res := pma.Sum(15, 45)
	fmt.Println("sum keys:", res.SumKeys, "elements:", res.NumElements)

	for k, v := range pma.Range(20, 40).Seq() {
		fmt.Println(k, v)
	}

	// Output:
	// find(30): 3
	// sum keys: 90 elements: 3
	// 20 2
	// 30 3
	// 40 4
}

func ExamplePMA_BulkLoad() {
	pma, err := pmago.New()
	if err != nil {
		panic(err)
	}
	defer pma.Close()

	batch := []pmago.Element{
		{Key: 1, Value: 100},
		{Key: 2, Value: 200},
		{Key: 3, Value: 300},
	}
	if err := pma.BulkLoad(batch); err != nil {
		panic(err)
	}

	fmt.Println("size:", pma.Size())

	// Output:
	// size: 3
}
