package convert

import (
	"github.com/jinzhu/copier"
)

// StructAssign copies same-named fields from src into dst
// StructAssign 把 src 与 dst 同名字段的值复制到 dst 中
func StructAssign(src any, dst any) error {
	return copier.CopyWithOption(dst, src, copier.Option{IgnoreEmpty: false, DeepCopy: true})
}
