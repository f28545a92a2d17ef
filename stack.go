package stablebt

// stackElement records one step of a root-to-leaf descent: the node and the
// child index taken out of it.
type stackElement struct {
	node *treeNode
	tag  int
}

type stack struct {
	list []stackElement
}

func (s *stack) push(e stackElement) {
	s.list = append(s.list, e)
}

func (s *stack) pop() stackElement {
	if len(s.list) == 0 {
		return stackElement{
			node: nil,
		}
	}
	v := s.list[len(s.list)-1]
	s.list = s.list[:len(s.list)-1]
	return v
}
