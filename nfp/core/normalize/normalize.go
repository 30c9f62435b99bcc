// Package normalize 把后端花式编码的“列表”统一转成有序切片。
// 设备 API 有时把数组序列化成 {"0":...,"1":...} 的稀疏表，
// 有时单个结果会丢掉外层数组，这里负责兜住所有形态。
package normalize

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
)

// TypeError 输入不是任何可识别的列表编码
type TypeError struct {
	Observed string
}

func (e *TypeError) Error() string {
	return "normalize: cannot interpret " + e.Observed + " as a list"
}

// List 将任意反序列化后的 JSON 值整理成有序列表：
//  1. nil => 空列表
//  2. 已是列表 => 原样返回（保序）
//  3. 空对象 => 空列表
//  4. 键全为规范十进制下标（无前导零）的对象 => 按键数值升序取值
//  5. 含非下标键的对象 => 包成单元素列表
//  6. 其余标量 => TypeError
//
// 同一输入必须得到同一输出，与 map 遍历顺序无关。
func List(v any) ([]any, error) {
	switch t := v.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return t, nil
	case map[string]any:
		return fromMap(t)
	default:
		return nil, &TypeError{Observed: fmt.Sprintf("%T", v)}
	}
}

func fromMap(m map[string]any) ([]any, error) {
	if len(m) == 0 {
		return []any{}, nil
	}

	idx := make([]uint64, 0, len(m))
	byIdx := make(map[uint64]any, len(m))
	for k, val := range m {
		n, err := strconv.ParseUint(k, 10, 64)
		// 带前导零的键（"00"、"01"）不是规范下标，会与 "0"、"1"
		// 撞同一格；连同其它非数字键一起按单个对象包起来
		if err != nil || (len(k) > 1 && k[0] == '0') {
			return []any{m}, nil
		}
		idx = append(idx, n)
		byIdx[n] = val
	}

	sort.Slice(idx, func(i, j int) bool { return idx[i] < idx[j] })
	out := make([]any, 0, len(idx))
	for _, n := range idx {
		out = append(out, byIdx[n])
	}
	return out, nil
}

// Into 整理后再解码到目标切片（out 必须是指向切片的指针）
func Into(v any, out any) error {
	list, err := List(v)
	if err != nil {
		return err
	}
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
