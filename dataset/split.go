package dataset

// FiveSplitGroups lists the class pairs of the five-way
// split: {0, 1}, {2, 3}, ..., {8, 9}.
var FiveSplitGroups = [][]int{{0, 1}, {2, 3}, {4, 5}, {6, 7}, {8, 9}}

// SplitByClass creates one subset for each group of
// classes, preserving the order of the images.
// Images whose labels appear in no group are dropped.
func SplitByClass(s *Set, groups [][]int) []*Set {
	groupIdx := map[int]int{}
	for i, g := range groups {
		for _, class := range g {
			groupIdx[class] = i
		}
	}
	res := make([]*Set, len(groups))
	for i := range res {
		res[i] = &Set{}
	}
	for i, label := range s.Labels {
		if g, ok := groupIdx[label]; ok {
			res[g].Images = append(res[g].Images, s.Images[i])
			res[g].Labels = append(res[g].Labels, label)
		}
	}
	return res
}

// SplitFive splits a ten-class set into five tasks.
func SplitFive(s *Set) []*Set {
	return SplitByClass(s, FiveSplitGroups)
}
